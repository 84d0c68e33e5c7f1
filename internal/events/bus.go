// Package events provides the in-process bus that fans domain events
// out from the worker pool to the webhook emitter and the matchmaking
// auto-trigger. Cross-process delivery rides RabbitMQ, not this bus.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dealscout/pipeline/internal/domain"
)

// Handler consumes one event. Handlers run synchronously on the
// publishing goroutine; a handler error is logged, never propagated,
// so one subscriber cannot poison another.
type Handler func(ctx context.Context, ev domain.Event) error

// Bus is a mutex-guarded subscriber registry.
type Bus struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	handlers map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers the event to every handler registered for its type.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.logger.Error("Event handler failed",
				slog.String("event_type", ev.Type),
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
