package directory

import (
	"strings"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// ByStatus matches records in any of the given statuses.
func ByStatus(statuses ...domain.TicketStatus) Predicate {
	return func(rec *domain.TicketRecord) bool {
		for _, s := range statuses {
			if rec.Status == s {
				return true
			}
		}
		return false
	}
}

// ByAssignee matches records assigned to address.
func ByAssignee(address string) Predicate {
	return func(rec *domain.TicketRecord) bool {
		return domain.SameAddress(rec.Assignee, address)
	}
}

// ByCreator matches records created by address.
func ByCreator(address string) Predicate {
	return func(rec *domain.TicketRecord) bool {
		return domain.SameAddress(rec.Creator, address)
	}
}

// Matching does a case-insensitive substring search over the ticket id,
// title and materialized description. An empty term matches everything.
func Matching(term string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(term))
	return func(rec *domain.TicketRecord) bool {
		if needle == "" {
			return true
		}
		if strings.Contains(strings.ToLower(rec.ID), needle) ||
			strings.Contains(strings.ToLower(rec.Title), needle) {
			return true
		}
		switch rec.Description.State {
		case domain.ContentInline, domain.ContentResolved:
			return strings.Contains(strings.ToLower(rec.Description.Text), needle)
		}
		return false
	}
}

// Complete matches records that reconciled fully.
func Complete() Predicate {
	return func(rec *domain.TicketRecord) bool {
		return rec.State == domain.RecordComplete
	}
}

// All matches when every predicate matches. Nil predicates are ignored.
func All(preds ...Predicate) Predicate {
	return func(rec *domain.TicketRecord) bool {
		for _, p := range preds {
			if p != nil && !p(rec) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate matches.
func Any(preds ...Predicate) Predicate {
	return func(rec *domain.TicketRecord) bool {
		for _, p := range preds {
			if p != nil && p(rec) {
				return true
			}
		}
		return false
	}
}
