package dto

import (
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
)

// CreateTicketRequest payload. Attachment is base64 encoded by the JSON
// decoder.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Attachment  []byte `json:"attachment,omitempty"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Action         domain.Action       `json:"action"`
	Assignee       string              `json:"assignee,omitempty"`
	ExpectedStatus domain.TicketStatus `json:"expected_status,omitempty"`
}

// CommentRequest payload.
type CommentRequest struct {
	Content string `json:"content"`
}

// RoleUpdateRequest payload.
type RoleUpdateRequest struct {
	Role string `json:"role"`
}

// RoleResponse echoes the applied role.
type RoleResponse struct {
	Address string      `json:"address"`
	Role    domain.Role `json:"role"`
}

// ContentResponse renders a content reference and its text.
type ContentResponse struct {
	Ref   string              `json:"ref,omitempty"`
	Text  string              `json:"text"`
	State domain.ContentState `json:"state"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Body      ContentResponse `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditEntryResponse is one line of the audit trail.
type AuditEntryResponse struct {
	EventID   string              `json:"event_id"`
	Kind      domain.EventKind    `json:"kind"`
	Actor     string              `json:"actor"`
	Assignee  string              `json:"assignee,omitempty"`
	Status    domain.TicketStatus `json:"status"`
	Summary   string              `json:"summary"`
	Timestamp time.Time           `json:"timestamp"`
}

// TicketSummary is the list view of a record.
type TicketSummary struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Status    domain.TicketStatus `json:"status"`
	Creator   string              `json:"creator"`
	Assignee  string              `json:"assignee,omitempty"`
	State     domain.RecordState  `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
	Version   int64               `json:"version"`
}

// TicketDetailResponse provides the full record with its audit trail.
type TicketDetailResponse struct {
	TicketSummary
	Description ContentResponse      `json:"description"`
	Attachment  *ContentResponse     `json:"attachment,omitempty"`
	Comments    []CommentResponse    `json:"comments"`
	Audit       []AuditEntryResponse `json:"audit"`
	Stale       bool                 `json:"stale,omitempty"`
}

// ReceiptResponse reports the outcome of a ledger write.
type ReceiptResponse struct {
	Outcome  ledger.Outcome `json:"outcome"`
	TicketID string         `json:"ticket_id"`
	EventRef string         `json:"event_ref,omitempty"`
	Sequence int64          `json:"sequence,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// SubmissionResponse pairs a receipt with the record after the write.
type SubmissionResponse struct {
	Receipt ReceiptResponse       `json:"receipt"`
	Ticket  *TicketDetailResponse `json:"ticket,omitempty"`
}

// ActionsResponse lists what the caller may do on a ticket.
type ActionsResponse struct {
	TicketID string              `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
	Actions  []domain.Action     `json:"actions"`
}

// NewTicketSummary builds the list view of rec.
func NewTicketSummary(rec *domain.TicketRecord) TicketSummary {
	return TicketSummary{
		ID:        rec.ID,
		Title:     rec.Title,
		Status:    rec.Status,
		Creator:   rec.Creator,
		Assignee:  rec.Assignee,
		State:     rec.State,
		CreatedAt: rec.CreatedAt,
		Version:   rec.Version,
	}
}

// NewTicketDetail builds the detail view of rec.
func NewTicketDetail(rec *domain.TicketRecord) *TicketDetailResponse {
	if rec == nil {
		return nil
	}
	resp := &TicketDetailResponse{
		TicketSummary: NewTicketSummary(rec),
		Description:   newContent(rec.Description),
		Comments:      make([]CommentResponse, 0, len(rec.Comments)),
		Audit:         make([]AuditEntryResponse, 0, len(rec.Audit)),
		Stale:         rec.Stale,
	}
	if rec.Attachment.State != domain.ContentEmpty && rec.Attachment.State != "" {
		att := newContent(rec.Attachment)
		resp.Attachment = &att
	}
	for _, c := range rec.Comments {
		resp.Comments = append(resp.Comments, CommentResponse{
			ID:        c.ID,
			Author:    c.Author,
			Body:      newContent(c.Body),
			CreatedAt: c.CreatedAt,
		})
	}
	for _, a := range rec.Audit {
		resp.Audit = append(resp.Audit, AuditEntryResponse{
			EventID:   a.EventID,
			Kind:      a.Kind,
			Actor:     a.Actor,
			Assignee:  a.Assignee,
			Status:    a.Status,
			Summary:   a.Summary,
			Timestamp: a.Timestamp,
		})
	}
	return resp
}

// NewReceipt renders a ledger receipt.
func NewReceipt(r ledger.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		Outcome:  r.Outcome,
		TicketID: r.TicketID,
		EventRef: r.EventRef,
		Sequence: r.Sequence,
	}
	if r.Reason != nil {
		resp.Reason = r.Reason.Error()
	}
	return resp
}

func newContent(c domain.Content) ContentResponse {
	return ContentResponse{Ref: c.Ref, Text: c.Text, State: c.State}
}
