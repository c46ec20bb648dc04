// Package events provides the in-process event bus used to decouple the
// pipeline core from observers (metrics, logging, liveness indicators).
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(BackendFallbackEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete event type, so dispatch
	// through a type switch.
	switch e := ev.(type) {
	case BackendFallbackEvent:
		event.Publish(b.dispatcher, e)
	case ProducerStateEvent:
		event.Publish(b.dispatcher, e)
	case SecondElapsedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type determines which events it receives. Returns an
// unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e BackendFallbackEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(BackendFallbackEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProducerStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SecondElapsedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
