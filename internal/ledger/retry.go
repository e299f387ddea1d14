package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// Retrying retries reads that fail with domain.ErrLedgerUnavailable.
// Writes pass through once: a write with an unknown outcome is resolved by
// reconciliation, not by resubmission.
type Retrying struct {
	Gateway
	attempts int
	backoff  time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

// NewRetrying wraps inner. attempts counts the first try.
func NewRetrying(inner Gateway, attempts int, backoff time.Duration, clk clock.Clock, logger *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{Gateway: inner, attempts: attempts, backoff: backoff, clock: clk, logger: logger}
}

func (r *Retrying) ReadTicket(ctx context.Context, id string) (domain.Ticket, error) {
	var t domain.Ticket
	err := r.do(ctx, "read_ticket", func() error {
		var err error
		t, err = r.Gateway.ReadTicket(ctx, id)
		return err
	})
	return t, err
}

func (r *Retrying) ReadEvents(ctx context.Context, id string, since int64) ([]domain.Event, error) {
	var events []domain.Event
	err := r.do(ctx, "read_events", func() error {
		var err error
		events, err = r.Gateway.ReadEvents(ctx, id, since)
		return err
	})
	return events, err
}

func (r *Retrying) ListTicketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.do(ctx, "list_tickets", func() error {
		var err error
		ids, err = r.Gateway.ListTicketIDs(ctx)
		return err
	})
	return ids, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.backoff * time.Duration(1<<(attempt-1))):
			}
		}
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrLedgerUnavailable) {
			return err
		}
		r.logger.Warn("ledger read failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}
