package reconcile

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/directory"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/events"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
)

// ContentResolver fetches content by digest. found=false means the store
// cannot serve it right now.
type ContentResolver interface {
	Get(ctx context.Context, digest string) ([]byte, bool, error)
}

// Reconciler keeps the directory in step with the ledger. It is the only
// writer of the directory.
type Reconciler struct {
	gateway    ledger.Gateway
	content    ContentResolver
	dir        *directory.Directory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	label      Labeler
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithDispatcher publishes record updates.
func WithDispatcher(d events.Dispatcher) Option {
	return func(r *Reconciler) { r.dispatcher = d }
}

// WithMetrics records reconciliation outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLabeler sets how addresses render in the audit trail.
func WithLabeler(l Labeler) Option {
	return func(r *Reconciler) { r.label = l }
}

// WithClock sets the time source for published notifications.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// New constructs a Reconciler.
func New(gateway ledger.Gateway, content ContentResolver, dir *directory.Directory, opts ...Option) *Reconciler {
	r := &Reconciler{
		gateway: gateway,
		content: content,
		dir:     dir,
		clock:   clock.NewSystem(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh reconciles one ticket from the ledger. A complete cached record
// only needs the event tail after its ledger cursor. When the ledger
// cannot be read, the cached record is returned with Stale set. An
// incomplete record is returned without error; callers retry later.
func (r *Reconciler) Refresh(ctx context.Context, id string) (*domain.TicketRecord, error) {
	prior, hasPrior := r.dir.Get(id)

	ticket, err := r.gateway.ReadTicket(ctx, id)
	if err != nil {
		return r.degrade(ctx, id, prior, hasPrior, err)
	}

	var (
		since int64
		base  []domain.Event
	)
	if hasPrior && prior.State == domain.RecordComplete {
		since = prior.LedgerCursor
		base = prior.Events
	}
	tail, err := r.gateway.ReadEvents(ctx, id, since)
	if err != nil {
		return r.degrade(ctx, id, prior, hasPrior, err)
	}
	cursor := since
	for _, ev := range tail {
		if ev.Sequence > cursor {
			cursor = ev.Sequence
		}
	}

	merged := make([]domain.Event, 0, len(base)+len(tail))
	merged = append(merged, base...)
	merged = append(merged, tail...)
	return r.store(ctx, ticket, merged, prior, cursor, len(tail))
}

// Ingest folds a batch of pushed events, possibly interleaved across
// tickets, duplicated or out of order. Each ticket's current state is read
// from the ledger before folding. Pushed events leave the ledger cursor
// alone, so the next Refresh still reads any event the push skipped.
func (r *Reconciler) Ingest(ctx context.Context, batch []domain.Event) ([]*domain.TicketRecord, error) {
	byTicket := make(map[string][]domain.Event)
	var order []string
	for _, ev := range batch {
		if _, ok := byTicket[ev.TicketID]; !ok {
			order = append(order, ev.TicketID)
		}
		byTicket[ev.TicketID] = append(byTicket[ev.TicketID], ev)
	}

	out := make([]*domain.TicketRecord, 0, len(order))
	for _, id := range order {
		ticket, err := r.gateway.ReadTicket(ctx, id)
		if err != nil {
			return out, err
		}
		prior, hasPrior := r.dir.Get(id)
		merged := byTicket[id]
		var cursor int64
		if hasPrior {
			merged = append(append([]domain.Event(nil), prior.Events...), merged...)
			cursor = prior.LedgerCursor
		}
		rec, err := r.store(ctx, ticket, merged, prior, cursor, len(byTicket[id]))
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ResolvePending retries content that was unavailable in the cached record
// without reading the ledger.
func (r *Reconciler) ResolvePending(ctx context.Context, id string) (*domain.TicketRecord, error) {
	prior, ok := r.dir.Get(id)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	if prior.PendingContent() == 0 {
		return prior, nil
	}
	next := cloneRecord(prior)
	next.Stale = false
	r.resolveContent(ctx, next, prior)
	if next.PendingContent() < prior.PendingContent() && r.dir.Upsert(id, next) {
		r.publish(ctx, next, 0)
		return next, nil
	}
	current, _ := r.dir.Get(id)
	return current, nil
}

func (r *Reconciler) store(ctx context.Context, ticket domain.Ticket, evs []domain.Event, prior *domain.TicketRecord, cursor int64, newEvents int) (*domain.TicketRecord, error) {
	rec := Fold(ticket, evs, r.label)
	rec.LedgerCursor = cursor
	r.resolveContent(ctx, rec, prior)

	if rec.State == domain.RecordIncomplete {
		r.metrics.RecordReconcile("incomplete")
		r.logger.Info("ticket awaiting event backfill", zap.String("ticket_id", ticket.ID))
	} else {
		r.metrics.RecordReconcile("complete")
	}

	if !r.dir.Upsert(ticket.ID, rec) {
		// A concurrent pass stored a fresher record.
		current, _ := r.dir.Get(ticket.ID)
		return current, nil
	}
	if changed(prior, rec) {
		r.publish(ctx, rec, newEvents)
	}
	return rec, nil
}

func changed(prior, next *domain.TicketRecord) bool {
	if prior == nil {
		return true
	}
	return prior.Version != next.Version ||
		prior.State != next.State ||
		len(prior.Events) != len(next.Events) ||
		prior.PendingContent() != next.PendingContent()
}

// degrade serves the cached record when the ledger is unreachable.
func (r *Reconciler) degrade(ctx context.Context, id string, prior *domain.TicketRecord, hasPrior bool, err error) (*domain.TicketRecord, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, domain.ErrLedgerUnavailable) || !hasPrior {
		r.metrics.RecordReconcile("failed")
		return nil, err
	}
	r.metrics.RecordReconcile("stale")
	r.logger.Warn("ledger unavailable, serving cached record",
		zap.String("ticket_id", id),
		zap.Int64("version", prior.Version),
		zap.Error(err))
	stale := cloneRecord(prior)
	stale.Stale = true
	return stale, nil
}

// resolveContent fills digest references, reusing text already resolved in
// prior so unchanged content costs no store round trip.
func (r *Reconciler) resolveContent(ctx context.Context, rec, prior *domain.TicketRecord) {
	known := resolvedText(prior)
	resolve := func(c *domain.Content) {
		if c.State != domain.ContentUnavailable {
			return
		}
		if text, ok := known[c.Ref]; ok {
			c.Text, c.State = text, domain.ContentResolved
			return
		}
		if r.content == nil {
			return
		}
		data, found, err := r.content.Get(ctx, c.Ref)
		if err != nil || !found {
			if err != nil {
				r.logger.Debug("content lookup failed", zap.String("digest", c.Ref), zap.Error(err))
			}
			return
		}
		c.Text, c.State = materialize(data), domain.ContentResolved
		known[c.Ref] = c.Text
	}

	resolve(&rec.Description)
	resolve(&rec.Attachment)
	for i := range rec.Comments {
		resolve(&rec.Comments[i].Body)
	}
}

// materialize renders stored bytes as text. Bytes that are not valid UTF-8
// become a base64 data URL so they survive JSON encoding unchanged.
func materialize(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func resolvedText(rec *domain.TicketRecord) map[string]string {
	out := make(map[string]string)
	if rec == nil {
		return out
	}
	add := func(c domain.Content) {
		if c.State == domain.ContentResolved {
			out[c.Ref] = c.Text
		}
	}
	add(rec.Description)
	add(rec.Attachment)
	for _, c := range rec.Comments {
		add(c.Body)
	}
	return out
}

func (r *Reconciler) publish(ctx context.Context, rec *domain.TicketRecord, newEvents int) {
	if r.dispatcher == nil {
		return
	}
	err := r.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRecordUpdated,
		TicketID:  rec.ID,
		Timestamp: r.clock.Now(),
		Payload: events.RecordUpdatedPayload{
			Version:        rec.Version,
			State:          rec.State,
			Status:         rec.Status,
			Assignee:       rec.Assignee,
			NewEvents:      newEvents,
			PendingContent: rec.PendingContent(),
		},
	})
	if err != nil {
		r.logger.Warn("record update handler failed", zap.String("ticket_id", rec.ID), zap.Error(err))
	}
}

// cloneRecord copies rec deeply enough that the copy's content can be
// changed without touching the cached original.
func cloneRecord(rec *domain.TicketRecord) *domain.TicketRecord {
	next := *rec
	next.Comments = append([]domain.Comment(nil), rec.Comments...)
	return &next
}
