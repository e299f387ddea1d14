package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

type flakyGateway struct {
	Gateway
	failures int
	calls    int
	err      error
}

func (f *flakyGateway) ReadTicket(ctx context.Context, id string) (domain.Ticket, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.Ticket{}, f.err
	}
	return f.Gateway.ReadTicket(ctx, id)
}

func TestRetrying_RetriesUnavailableReads(t *testing.T) {
	t.Parallel()

	m := newTestMemory()
	id := createTicket(t, m)
	flaky := &flakyGateway{Gateway: m, failures: 2, err: fmt.Errorf("%w: connection refused", domain.ErrLedgerUnavailable)}
	gw := NewRetrying(flaky, 3, 50*time.Millisecond, clock.NewFake(time.Now()), nil)

	ticket, err := gw.ReadTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if ticket.ID != id || flaky.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", flaky.calls)
	}
}

func TestRetrying_DoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	m := newTestMemory()
	flaky := &flakyGateway{Gateway: m}
	gw := NewRetrying(flaky, 5, time.Millisecond, clock.NewFake(time.Now()), nil)

	if _, err := gw.ReadTicket(context.Background(), "42"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("expected a single call, got %d", flaky.calls)
	}
}

func TestRetrying_GivesUp(t *testing.T) {
	t.Parallel()

	flaky := &flakyGateway{Gateway: newTestMemory(), failures: 10, err: domain.ErrLedgerUnavailable}
	gw := NewRetrying(flaky, 2, time.Millisecond, clock.NewFake(time.Now()), nil)

	if _, err := gw.ReadTicket(context.Background(), "1"); !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", flaky.calls)
	}
}
