package domain

import "time"

// ContentState describes how much of a content reference has been materialized.
type ContentState string

const (
	ContentInline      ContentState = "INLINE"
	ContentResolved    ContentState = "RESOLVED"
	ContentUnavailable ContentState = "UNAVAILABLE"
	ContentEmpty       ContentState = "EMPTY"
)

// ContentPlaceholder is rendered in place of content the store cannot serve yet.
const ContentPlaceholder = "[content unavailable]"

// Content pairs a reference with its materialized text.
type Content struct {
	Ref   string
	Text  string
	State ContentState
}

// Pending reports whether the content still needs a store round trip.
func (c Content) Pending() bool {
	return c.State == ContentUnavailable
}

// Comment is an immutable note on a ticket.
type Comment struct {
	ID        string
	TicketID  string
	Author    string
	Body      Content
	CreatedAt time.Time
	Sequence  int64
}

// RecordState reports whether a record could be fully reconciled.
type RecordState string

const (
	RecordComplete   RecordState = "COMPLETE"
	RecordIncomplete RecordState = "INCOMPLETE"
)

// TicketRecord is the materialized view of a ticket.
type TicketRecord struct {
	ID          string
	State       RecordState
	Title       string
	Description Content
	Attachment  Content
	Status      TicketStatus
	Creator     string
	Assignee    string
	CreatedAt   time.Time
	Comments    []Comment
	Audit       []AuditEntry
	// Events is the deduplicated, ordered log the record was folded from.
	Events []Event
	// Version is the newest ledger sequence reflected in the record.
	Version int64
	// LedgerCursor is the newest sequence read from the ledger's own log.
	// Pushed events never advance it, so a gap in a push is refetched.
	LedgerCursor int64
	// Stale is set when the record was served from cache after a ledger failure.
	Stale bool
}

// LastEventSequence returns the sequence of the newest folded event.
func (r *TicketRecord) LastEventSequence() int64 {
	if r == nil || len(r.Events) == 0 {
		return 0
	}
	var max int64
	for _, e := range r.Events {
		if e.Sequence > max {
			max = e.Sequence
		}
	}
	return max
}

// PendingContent counts references that are not yet resolved.
func (r *TicketRecord) PendingContent() int {
	if r == nil {
		return 0
	}
	n := 0
	if r.Description.Pending() {
		n++
	}
	if r.Attachment.Pending() {
		n++
	}
	for _, c := range r.Comments {
		if c.Body.Pending() {
			n++
		}
	}
	return n
}

// AuditEntry is one human-readable line of the audit trail.
type AuditEntry struct {
	EventID   string
	Kind      EventKind
	Actor     string
	Assignee  string
	Status    TicketStatus
	Summary   string
	Timestamp time.Time
	Sequence  int64
}
