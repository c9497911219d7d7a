package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// EventType represents different event types in the system
type EventType string

const (
	// EventCacheChanged fires after every cache store mutation (write or
	// delete) with a CacheChangedPayload.
	EventCacheChanged EventType = "cache_changed"
)

// CacheChangedPayload describes a single cache store mutation.
type CacheChangedPayload struct {
	Selector models.Selector
	// Deleted is true when the mutation removed the record.
	Deleted bool
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	// Subscribe registers a handler for an event type and returns an id
	// usable with Unsubscribe.
	Subscribe(eventType EventType, handler EventHandler) (string, error)

	// Unsubscribe removes a previously registered handler
	Unsubscribe(eventType EventType, id string) error

	// Publish sends an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
