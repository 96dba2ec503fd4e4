package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is a small publish-subscribe hub. Relay and transport publish
// what happened to each message; history, telemetry and the console
// subscribe without the pipeline knowing about them.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	stopped  bool
	wg       sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
	inline  bool
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
	}
}

// Subscribe registers a handler for an event type. The name is only used in logs.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.subscribe(eventType, handlerEntry{name: name, handler: handler})
}

// SubscribeSync registers a handler that Emit runs in the publisher's
// goroutine, so it sees events in exactly the order they were emitted.
// It must be quick: the publisher waits for it.
func (eb *EventBus) SubscribeSync(eventType EventType, name string, handler HandlerFunc) {
	eb.subscribe(eventType, handlerEntry{name: name, handler: handler, inline: true})
}

func (eb *EventBus) subscribe(eventType EventType, h handlerEntry) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], h)

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", h.name).
		Bool("inline", h.inline).
		Msg("subscribed to event")
}

// Emit delivers an event to every subscriber. Handlers registered with
// Subscribe each run in their own goroutine; those registered with
// SubscribeSync run before Emit returns, in registration order.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	if eb.stopped {
		eb.mu.RUnlock()
		return
	}
	handlers := eb.handlers[event.Type]
	if len(handlers) == 0 {
		eb.mu.RUnlock()
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting event")

	// wg.Add under the read lock so Stop cannot miss in-flight handlers.
	eb.wg.Add(len(handlers))
	var inline []handlerEntry
	for _, h := range handlers {
		if h.inline {
			inline = append(inline, h)
			continue
		}
		h := h
		go func() {
			defer eb.wg.Done()
			eb.invoke(ctx, h, event)
		}()
	}
	eb.mu.RUnlock()

	for _, h := range inline {
		eb.invoke(ctx, h, event)
		eb.wg.Done()
	}
}

// EmitSync delivers an event to every subscriber in registration order and
// returns the first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	var firstErr error
	for _, h := range eb.snapshot(event.Type) {
		if err := eb.invoke(ctx, h, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshot copies the handler list so handlers run without holding the lock.
func (eb *EventBus) snapshot(eventType EventType) []handlerEntry {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return nil
	}
	handlers := eb.handlers[eventType]
	out := make([]handlerEntry, len(handlers))
	copy(out, handlers)
	return out
}

func (eb *EventBus) invoke(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Stop stops accepting new events and waits for in-flight handlers.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	eb.stopped = true
	eb.mu.Unlock()

	eb.wg.Wait()
	log.Info().Msg("event bus stopped")
}

// HandlerCount returns the number of handlers registered for an event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
