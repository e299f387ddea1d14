package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	seen   []events.EventType
	gate   chan struct{}
	called chan struct{}
}

func (r *recordingNotifier) Handle(ctx context.Context, event events.Event) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.seen = append(r.seen, event.Type)
	r.mu.Unlock()
	if r.called != nil {
		r.called <- struct{}{}
	}
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestNotificationWorker_DeliversOffThePublishPath(t *testing.T) {
	t.Parallel()

	dispatcher := events.NewInMemoryDispatcher()
	notifier := &recordingNotifier{called: make(chan struct{}, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartNotificationWorker(ctx, dispatcher, notifier, 4, nil)

	for _, eventType := range events.AllTypes() {
		if err := dispatcher.Publish(context.Background(), events.Event{Type: eventType, TicketID: "1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for i := 0; i < len(events.AllTypes()); i++ {
		select {
		case <-notifier.called:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d deliveries, got %d", len(events.AllTypes()), notifier.count())
		}
	}
}

func TestNotificationWorker_DropsWhenFullAndDrainsOnStop(t *testing.T) {
	t.Parallel()

	dispatcher := events.NewInMemoryDispatcher()
	gate := make(chan struct{})
	notifier := &recordingNotifier{gate: gate}
	ctx, cancel := context.WithCancel(context.Background())
	w := StartNotificationWorker(ctx, dispatcher, notifier, 1, nil)

	for i := 0; i < 5; i++ {
		_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventRecordUpdated})
	}
	// One event is held by the blocked notifier and one sits in the buffer.
	if w.Dropped() < 3 {
		t.Fatalf("expected at least 3 dropped events, got %d", w.Dropped())
	}

	cancel()
	close(gate)
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected worker to stop")
	}
	if got := notifier.count() + int(w.Dropped()); got != 5 {
		t.Fatalf("expected every event delivered or dropped, got %d", got)
	}
}
