package worker

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/events"
)

// Notifier handles one event off the request path.
type Notifier interface {
	Handle(ctx context.Context, event events.Event) error
}

// NotificationWorker moves notification delivery off the publishing
// goroutine. Events are buffered; when the buffer is full the event is
// dropped and counted rather than blocking a request or a sync tick.
type NotificationWorker struct {
	notifier Notifier
	queue    chan events.Event
	logger   *zap.Logger
	dropped  atomic.Int64
	done     chan struct{}
}

// StartNotificationWorker subscribes to every event type on dispatcher and
// delivers to notifier until ctx is cancelled.
func StartNotificationWorker(ctx context.Context, dispatcher events.Dispatcher, notifier Notifier, buffer int, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	w := &NotificationWorker{
		notifier: notifier,
		queue:    make(chan events.Event, buffer),
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, eventType := range events.AllTypes() {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
	go w.run(ctx)
	return w
}

// Dropped reports how many events were discarded on a full buffer.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Done is closed once the worker has drained and stopped.
func (w *NotificationWorker) Done() <-chan struct{} {
	return w.done
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.dropped.Add(1)
		w.logger.Warn("notification dropped", zap.String("type", string(event.Type)), zap.String("ticket_id", event.TicketID))
	}
	return nil
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case event := <-w.queue:
			w.deliver(ctx, event)
		}
	}
}

// drain delivers what is already buffered so shutdown does not lose it.
func (w *NotificationWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, event events.Event) {
	if err := w.notifier.Handle(ctx, event); err != nil {
		w.logger.Warn("notification failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
