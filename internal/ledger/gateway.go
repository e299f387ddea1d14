// Package ledger is the boundary to the authoritative ticket ledger. Event
// payloads are decoded here, once, into domain types.
package ledger

import (
	"context"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// Outcome is the result class of a ledger write.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	// OutcomePending means the write was submitted but not yet confirmed;
	// confirmation arrives later as an event through reconciliation.
	OutcomePending  Outcome = "pending"
	OutcomeRejected Outcome = "rejected"
)

// Receipt describes what happened to a write.
type Receipt struct {
	Outcome  Outcome
	TicketID string
	// EventRef is the ledger transaction reference of the write.
	EventRef string
	Sequence int64
	// Reason is set for rejected writes, e.g. domain.ErrStaleState.
	Reason error
	// Event is the confirmed event of an accepted write.
	Event *domain.Event
}

// Accepted reports whether the write landed.
func (r Receipt) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

// Submission is a conditional transition write.
type Submission struct {
	TicketID       string
	Action         domain.Action
	Actor          string
	Assignee       string
	ExpectedStatus domain.TicketStatus
}

// NewTicket carries the fields fixed at creation.
type NewTicket struct {
	Creator        string
	Title          string
	DescriptionRef string
	AttachmentRef  string
}

// NewComment appends a comment reference to a ticket.
type NewComment struct {
	TicketID   string
	Author     string
	CommentID  string
	ContentRef string
}

// Gateway reads ticket state and events and submits writes. I/O failures
// wrap domain.ErrLedgerUnavailable; unknown tickets return
// domain.ErrTicketNotFound.
type Gateway interface {
	ReadTicket(ctx context.Context, id string) (domain.Ticket, error)
	// ReadEvents returns events with sequence greater than since, in ledger order.
	ReadEvents(ctx context.Context, id string, since int64) ([]domain.Event, error)
	ListTicketIDs(ctx context.Context) ([]string, error)
	CreateTicket(ctx context.Context, req NewTicket) (Receipt, error)
	AddComment(ctx context.Context, req NewComment) (Receipt, error)
	// SubmitTransition applies the action only if the ticket is still in
	// ExpectedStatus; otherwise the receipt is rejected with domain.ErrStaleState.
	SubmitTransition(ctx context.Context, sub Submission) (Receipt, error)
}

// EventID derives the event identity from its transaction reference. Every
// write emits exactly one event, at log index 0.
func EventID(txRef string) string {
	return txRef + ":0"
}

// planTransition validates a submission against the ticket's current ledger
// state and returns the event payload it produces.
func planTransition(current domain.Ticket, sub Submission) (domain.Edge, domain.Payload, error) {
	if current.Status != sub.ExpectedStatus {
		return domain.Edge{}, nil, domain.ErrStaleState
	}
	edge, ok := domain.LookupEdge(current.Status, sub.Action)
	if !ok {
		return domain.Edge{}, nil, domain.ErrInvalidTransition
	}
	if edge.SetsAssignee {
		if sub.Assignee == "" || sub.Assignee == domain.ZeroAddress {
			return domain.Edge{}, nil, domain.ErrInvalidInput
		}
		return edge, domain.AssignedPayload{
			Action:           sub.Action,
			Assignee:         sub.Assignee,
			PreviousAssignee: current.Assignee,
			From:             edge.From,
			To:               edge.To,
		}, nil
	}
	return edge, domain.StatusChangedPayload{
		Action:        sub.Action,
		From:          edge.From,
		To:            edge.To,
		ClearAssignee: edge.ClearAssignee,
	}, nil
}

// applyEdge returns the ticket after the edge is taken.
func applyEdge(t domain.Ticket, edge domain.Edge, assignee string) domain.Ticket {
	t.Status = edge.To
	switch {
	case edge.SetsAssignee:
		t.Assignee = assignee
	case edge.ClearAssignee:
		t.Assignee = ""
	}
	return t
}
