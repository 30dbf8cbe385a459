// Package eventbus carries the execution lifecycle events that drive the
// engine: the api publishes dispatches and signals, workers consume them and
// publish completions and failures back onto the same bus.
package eventbus

import (
	"context"

	"github.com/relayforge/relayforge/pkg/events"
)

// Event is anything the bus can carry. Concrete types live in pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher emits events keyed by execution id. Events sharing a key are
// delivered in publish order, which is what keeps a signal from overtaking
// the dispatch that created its execution.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers handlers per event type and then consumes.
// Handle must be called for every type of interest before Subscribe; a
// handler returning an error nacks the message for redelivery.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
