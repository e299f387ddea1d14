package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

func TestToDomainError_MapsCoreTaxonomy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err       error
		code      string
		status    int
		retryable bool
	}{
		{domain.Reject(domain.ErrInvalidTransition, domain.ActionClose, domain.TicketStatusOpen, ""), "INVALID_TRANSITION", http.StatusUnprocessableEntity, false},
		{domain.Reject(domain.ErrUnauthorized, domain.ActionAssign, domain.TicketStatusOpen, ""), "UNAUTHORIZED", http.StatusForbidden, false},
		{domain.Reject(domain.ErrStaleState, domain.ActionAssign, domain.TicketStatusOpen, ""), "STALE_STATE", http.StatusConflict, true},
		{fmt.Errorf("%w: upload", domain.ErrContentUnavailable), "CONTENT_UNAVAILABLE", http.StatusNotFound, true},
		{domain.ErrIncomplete, "INCOMPLETE", http.StatusAccepted, true},
		{fmt.Errorf("read: %w", domain.ErrLedgerUnavailable), "LEDGER_UNAVAILABLE", http.StatusServiceUnavailable, true},
		{domain.ErrTicketNotFound, "NOT_FOUND", http.StatusNotFound, false},
		{errors.New("disk on fire"), "INTERNAL_ERROR", http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		de := ToDomainError(tc.err)
		if de.Code != tc.code || de.HTTPStatus != tc.status {
			t.Fatalf("%v: expected %s/%d, got %s/%d", tc.err, tc.code, tc.status, de.Code, de.HTTPStatus)
		}
		if Retryable(tc.err) != tc.retryable {
			t.Fatalf("%v: expected retryable=%v", tc.err, tc.retryable)
		}
	}
}

func TestFromCore_RejectionDetails(t *testing.T) {
	t.Parallel()

	de := FromCore(domain.Reject(domain.ErrUnauthorized, domain.ActionResolve, domain.TicketStatusInProgress, "actor is not the assignee"))
	if de == nil {
		t.Fatalf("expected mapping")
	}
	if de.Details["action"] != domain.ActionResolve || de.Details["status"] != domain.TicketStatusInProgress {
		t.Fatalf("expected action and status details, got %v", de.Details)
	}
	if FromCore(errors.New("plain")) != nil {
		t.Fatalf("expected nil for non-core errors")
	}
	if ToDomainError(nil) != nil {
		t.Fatalf("expected nil for nil")
	}
	if got := ToDomainError(NewUnauthenticated("no token")); got.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got.HTTPStatus)
	}
}
