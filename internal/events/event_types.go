package events

import (
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRecordUpdated       EventType = "ticket_record_updated"
	EventTransitionSubmitted EventType = "ticket_transition_submitted"
	EventCommentSubmitted    EventType = "ticket_comment_submitted"
	EventTicketSubmitted     EventType = "ticket_submitted"
)

// AllTypes lists every event type.
func AllTypes() []EventType {
	return []EventType{EventRecordUpdated, EventTransitionSubmitted, EventCommentSubmitted, EventTicketSubmitted}
}

// Event is an in-process notification emitted by the reconciler and the
// ticket service. It is not a ledger event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RecordUpdatedPayload payload.
type RecordUpdatedPayload struct {
	Version        int64               `json:"version"`
	State          domain.RecordState  `json:"state"`
	Status         domain.TicketStatus `json:"status"`
	Assignee       string              `json:"assignee,omitempty"`
	NewEvents      int                 `json:"new_events"`
	PendingContent int                 `json:"pending_content"`
}

// SubmissionPayload payload for transition, comment and create submissions.
type SubmissionPayload struct {
	Action   domain.Action `json:"action,omitempty"`
	Outcome  string        `json:"outcome"`
	EventRef string        `json:"event_ref,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}
