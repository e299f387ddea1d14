package domain

import (
	"sort"
	"time"
)

// EventKind tags the payload carried by an Event.
type EventKind string

const (
	EventCreated       EventKind = "CREATED"
	EventStatusChanged EventKind = "STATUS_CHANGED"
	EventAssigned      EventKind = "ASSIGNED"
	EventCommentAdded  EventKind = "COMMENT_ADDED"
)

// Event is an immutable ledger fact about a ticket. Timestamp is ledger
// block time; Sequence is the ledger-wide ordering of the write.
type Event struct {
	ID        string
	TicketID  string
	Kind      EventKind
	Actor     string
	Timestamp time.Time
	Sequence  int64
	Payload   Payload
}

// Payload is the closed set of kind-specific event bodies.
type Payload interface {
	Kind() EventKind
}

// CreatedPayload fixes the title and content references of a ticket.
type CreatedPayload struct {
	Title          string `cbor:"title"`
	DescriptionRef string `cbor:"description_ref"`
	AttachmentRef  string `cbor:"attachment_ref,omitempty"`
}

// StatusChangedPayload records a status move without an assignment change,
// except for reopen which clears the assignee.
type StatusChangedPayload struct {
	Action        Action       `cbor:"action"`
	From          TicketStatus `cbor:"from"`
	To            TicketStatus `cbor:"to"`
	ClearAssignee bool         `cbor:"clear_assignee,omitempty"`
}

// AssignedPayload records assign and reassign, including the status move.
type AssignedPayload struct {
	Action           Action       `cbor:"action"`
	Assignee         string       `cbor:"assignee"`
	PreviousAssignee string       `cbor:"previous_assignee,omitempty"`
	From             TicketStatus `cbor:"from"`
	To               TicketStatus `cbor:"to"`
}

// CommentAddedPayload references comment content by digest.
type CommentAddedPayload struct {
	CommentID  string `cbor:"comment_id"`
	ContentRef string `cbor:"content_ref"`
}

func (CreatedPayload) Kind() EventKind       { return EventCreated }
func (StatusChangedPayload) Kind() EventKind { return EventStatusChanged }
func (AssignedPayload) Kind() EventKind      { return EventAssigned }
func (CommentAddedPayload) Kind() EventKind  { return EventCommentAdded }

// EventLess orders events by (timestamp, sequence), falling back to ID so
// the order is total even for malformed duplicates.
func EventLess(a, b Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}

// SortEvents sorts events in place by (timestamp, sequence).
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return EventLess(events[i], events[j])
	})
}
