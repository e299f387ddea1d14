// Package reconcile merges the ledger's current ticket state with the
// ticket's event log and resolved content into a TicketRecord.
package reconcile

import (
	"fmt"

	"github.com/ledgerdesk/ledgerdesk/internal/contentstore"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// Labeler renders an address for the audit trail. A nil Labeler prints
// addresses as they are.
type Labeler func(address string) string

func (l Labeler) label(address string) string {
	if address == "" || address == domain.ZeroAddress {
		return "nobody"
	}
	if l == nil {
		return address
	}
	return l(address)
}

// Fold builds the record for ticket from events. It is pure: duplicate
// events, events for other tickets and arrival order do not affect the
// result. Content references are left unresolved; digests render as the
// placeholder until resolved.
func Fold(ticket domain.Ticket, events []domain.Event, label Labeler) *domain.TicketRecord {
	ordered := normalize(ticket.ID, events)

	rec := &domain.TicketRecord{
		ID:        ticket.ID,
		State:     domain.RecordIncomplete,
		CreatedAt: ticket.CreatedAt,
		Events:    ordered,
		Audit:     make([]domain.AuditEntry, 0, len(ordered)),
	}

	var (
		status   = domain.TicketStatusOpen
		assignee string
		created  bool
	)
	for _, ev := range ordered {
		switch p := ev.Payload.(type) {
		case domain.CreatedPayload:
			if created {
				continue
			}
			created = true
			rec.Title = p.Title
			rec.Description = contentFor(p.DescriptionRef)
			rec.Attachment = contentFor(p.AttachmentRef)
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = ev.Timestamp
			}
			status = domain.TicketStatusOpen
		case domain.AssignedPayload:
			status = p.To
			assignee = p.Assignee
		case domain.StatusChangedPayload:
			status = p.To
			if p.ClearAssignee {
				assignee = ""
			}
		case domain.CommentAddedPayload:
			id := p.CommentID
			if id == "" {
				id = ev.ID
			}
			rec.Comments = append(rec.Comments, domain.Comment{
				ID:        id,
				TicketID:  ev.TicketID,
				Author:    ev.Actor,
				Body:      contentFor(p.ContentRef),
				CreatedAt: ev.Timestamp,
				Sequence:  ev.Sequence,
			})
		default:
			continue
		}
		rec.Audit = append(rec.Audit, domain.AuditEntry{
			EventID:   ev.ID,
			Kind:      ev.Kind,
			Actor:     ev.Actor,
			Assignee:  assignee,
			Status:    status,
			Summary:   summarize(ev, label),
			Timestamp: ev.Timestamp,
			Sequence:  ev.Sequence,
		})
	}

	// The ledger read is authoritative for mutable fields; the event tail
	// may lag behind it.
	rec.Status = ticket.Status
	rec.Assignee = ticket.Assignee
	rec.Creator = ticket.Creator
	if created {
		rec.State = domain.RecordComplete
	}
	rec.Version = rec.LastEventSequence()
	if ticket.Sequence > rec.Version {
		rec.Version = ticket.Sequence
	}
	return rec
}

// normalize drops duplicates and foreign events and sorts the rest.
func normalize(ticketID string, events []domain.Event) []domain.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.TicketID != ticketID || ev.ID == "" {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	domain.SortEvents(out)
	return out
}

// contentFor classifies a reference without touching the store.
func contentFor(ref string) domain.Content {
	switch {
	case ref == "":
		return domain.Content{State: domain.ContentEmpty}
	case contentstore.IsDigest(ref):
		return domain.Content{Ref: ref, Text: domain.ContentPlaceholder, State: domain.ContentUnavailable}
	default:
		return domain.Content{Ref: ref, Text: ref, State: domain.ContentInline}
	}
}

func summarize(ev domain.Event, label Labeler) string {
	actor := label.label(ev.Actor)
	switch p := ev.Payload.(type) {
	case domain.CreatedPayload:
		return fmt.Sprintf("%s created ticket %q", actor, p.Title)
	case domain.AssignedPayload:
		if p.Action == domain.ActionReassign {
			return fmt.Sprintf("%s reassigned ticket from %s to %s", actor, label.label(p.PreviousAssignee), label.label(p.Assignee))
		}
		return fmt.Sprintf("%s assigned ticket to %s (%s -> %s)", actor, label.label(p.Assignee), p.From, p.To)
	case domain.StatusChangedPayload:
		switch p.Action {
		case domain.ActionResolve:
			return fmt.Sprintf("%s resolved ticket", actor)
		case domain.ActionClose:
			return fmt.Sprintf("%s closed ticket", actor)
		case domain.ActionReopen:
			return fmt.Sprintf("%s reopened ticket, assignee cleared", actor)
		}
		return fmt.Sprintf("%s moved ticket %s -> %s", actor, p.From, p.To)
	case domain.CommentAddedPayload:
		return fmt.Sprintf("%s commented", actor)
	}
	return string(ev.Kind)
}
