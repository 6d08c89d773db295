// Package eventbus provides publish/subscribe plumbing for pipeline events.
package eventbus

import (
	"context"

	"github.com/genflowhq/genflow/pkg/events"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event any) error

// EventBus decouples the API (producers) from the worker (consumer). Exactly
// one logical executor per submission is achieved by running a single worker
// consumer group.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
	GenerateID() string
	Close() error
}
