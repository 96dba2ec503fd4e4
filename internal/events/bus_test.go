package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEmitSync_DeliversInOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string

	bus.Subscribe(EventMessageRelayed, "first", func(ctx context.Context, e Event) error {
		got = append(got, "first:"+e.Source)
		return nil
	})
	bus.Subscribe(EventMessageRelayed, "second", func(ctx context.Context, e Event) error {
		got = append(got, "second:"+e.Source)
		return nil
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventMessageRelayed, Source: "relay"}); err != nil {
		t.Fatalf("EmitSync: %v", err)
	}
	if len(got) != 2 || got[0] != "first:relay" || got[1] != "second:relay" {
		t.Fatalf("got %v", got)
	}
}

func TestEmitSync_ReturnsFirstErrorAndRecoversPanics(t *testing.T) {
	bus := NewEventBus()
	errBoom := errors.New("boom")
	called := false

	bus.Subscribe(EventSendFailed, "panics", func(ctx context.Context, e Event) error {
		panic("handler bug")
	})
	bus.Subscribe(EventSendFailed, "fails", func(ctx context.Context, e Event) error {
		return errBoom
	})
	bus.Subscribe(EventSendFailed, "ok", func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventSendFailed})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if !called {
		t.Fatal("handler after a panic/error was not called")
	}
}

func TestEmit_StopWaitsForHandlers(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	count := 0

	bus.Subscribe(EventPacketSent, "count", func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Emit(context.Background(), Event{Type: EventPacketSent})
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("count = %d, want 10", count)
	}

	// Events after Stop are ignored.
	bus.Emit(context.Background(), Event{Type: EventPacketSent})
	if err := bus.EmitSync(context.Background(), Event{Type: EventPacketSent}); err != nil {
		t.Fatalf("EmitSync after stop: %v", err)
	}
	if count != 10 {
		t.Fatalf("count after stop = %d, want 10", count)
	}
}

func TestEmit_SyncSubscriberRunsInEmitOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string

	bus.SubscribeSync(EventMessageRelayed, "history", func(ctx context.Context, e Event) error {
		got = append(got, e.Source)
		return nil
	})

	want := []string{"a", "b", "c", "d", "e"}
	for _, src := range want {
		bus.Emit(context.Background(), Event{Type: EventMessageRelayed, Source: src})
		// Delivered before Emit returns.
		if got[len(got)-1] != src {
			t.Fatalf("after Emit(%s) got %v", src, got)
		}
	}
	bus.Stop()

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEmit_SyncSubscriberPanicDoesNotReachPublisher(t *testing.T) {
	bus := NewEventBus()
	bus.SubscribeSync(EventSendFailed, "panics", func(ctx context.Context, e Event) error {
		panic("handler bug")
	})

	bus.Emit(context.Background(), Event{Type: EventSendFailed})
	// Stop returns only if the inline handler was accounted for.
	bus.Stop()
}

func TestHandlerCount(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe(EventShutdown, "a", func(context.Context, Event) error { return nil })

	if n := bus.HandlerCount(EventShutdown); n != 1 {
		t.Fatalf("HandlerCount = %d, want 1", n)
	}
	if n := bus.HandlerCount(EventPacketReceived); n != 0 {
		t.Fatalf("HandlerCount = %d, want 0", n)
	}
}
