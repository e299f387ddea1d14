package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcher_RunsAllHandlers(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher()
	calls := 0
	boom := errors.New("boom")
	d.Subscribe(EventRecordUpdated, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventRecordUpdated, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventTicketSubmitted, func(context.Context, Event) error {
		t.Fatalf("unexpected handler for other type")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventRecordUpdated, TicketID: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestDispatcher_RecoversPanicsAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher()
	ran := false
	d.Subscribe(EventCommentSubmitted, func(context.Context, Event) error {
		panic("nil map")
	})
	d.Subscribe(EventCommentSubmitted, func(context.Context, Event) error {
		ran = true
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventCommentSubmitted}); err == nil {
		t.Fatalf("expected panic to surface as an error")
	}
	if !ran {
		t.Fatalf("expected later handler to run after a panic")
	}

	ran = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Publish(ctx, Event{Type: EventCommentSubmitted}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Fatalf("expected no handlers after cancellation")
	}
}
