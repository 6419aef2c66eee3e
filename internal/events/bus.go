package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(UpdateStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic, so dispatch on the concrete type
	switch e := ev.(type) {
	case UpdateSourceEvent:
		event.Publish(b.dispatcher, e)
	case UpdateStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case UpdatePromptEvent:
		event.Publish(b.dispatcher, e)
	case StatsBumpedEvent:
		event.Publish(b.dispatcher, e)
	case WindowChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e UpdateSourceEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(UpdateSourceEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UpdateStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UpdatePromptEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatsBumpedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WindowChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
