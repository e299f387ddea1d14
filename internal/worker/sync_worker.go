package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/reconcile"
)

// SyncWorker polls the ledger and reconciles every ticket it reports.
// Confirmations of pending writes reach the directory this way.
type SyncWorker struct {
	gateway    ledger.Gateway
	reconciler *reconcile.Reconciler
	interval   time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// SyncStats summarizes one pass.
type SyncStats struct {
	Tickets    int
	Incomplete int
	Stale      int
	Failed     int
}

// NewSyncWorker constructs a worker.
func NewSyncWorker(gateway ledger.Gateway, reconciler *reconcile.Reconciler, interval time.Duration, clk clock.Clock, logger *zap.Logger) *SyncWorker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SyncWorker{gateway: gateway, reconciler: reconciler, interval: interval, clock: clk, logger: logger}
}

// Run syncs immediately and then every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context) {
	w.logger.Info("ledger sync started", zap.Duration("interval", w.interval))
	for {
		if _, err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("ledger sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("ledger sync stopped")
			return
		case <-w.clock.After(w.interval):
		}
	}
}

// SyncOnce reconciles every ledger ticket once and retries content that
// was unavailable. A failure for one ticket does not stop the pass.
func (w *SyncWorker) SyncOnce(ctx context.Context) (SyncStats, error) {
	var stats SyncStats
	ids, err := w.gateway.ListTicketIDs(ctx)
	if err != nil {
		return stats, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Tickets++
		rec, err := w.reconciler.Refresh(ctx, id)
		if err != nil {
			stats.Failed++
			if !errors.Is(err, domain.ErrTicketNotFound) {
				w.logger.Debug("ticket sync failed", zap.String("ticket_id", id), zap.Error(err))
			}
			continue
		}
		switch {
		case rec.Stale:
			stats.Stale++
		case rec.State == domain.RecordIncomplete:
			stats.Incomplete++
		case rec.PendingContent() > 0:
			if _, err := w.reconciler.ResolvePending(ctx, id); err != nil {
				w.logger.Debug("content retry failed", zap.String("ticket_id", id), zap.Error(err))
			}
		}
	}
	w.logger.Debug("ledger sync pass",
		zap.Int("tickets", stats.Tickets),
		zap.Int("incomplete", stats.Incomplete),
		zap.Int("stale", stats.Stale),
		zap.Int("failed", stats.Failed))
	return stats, nil
}
