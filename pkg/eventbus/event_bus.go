// Package eventbus provides event-driven communication between the CRUD
// layer, the engine, and any downstream consumers.
package eventbus

import (
	"context"

	"github.com/magnusmagz/crm-k-sub002/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends the event on the topic derived from its type. The key
	// groups related events (typically the entity ID) for ordered delivery
	// on partitioned transports.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers a handler for an event type. All handlers must be
	// registered before Subscribe is called.
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
