package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
)

// SubscriptionSource lists the active subscriptions for an event type.
type SubscriptionSource interface {
	ActiveSubscriptions(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error)
}

// TaskPublisher puts a delivery task onto the webhook delivery queue.
type TaskPublisher interface {
	PublishDelivery(ctx context.Context, task domain.DeliveryTask) error
}

// Emitter fans one domain event out to one delivery task per active
// matching subscription. Tasks are independent, so a slow or broken
// subscriber never blocks the others.
type Emitter struct {
	logger    *slog.Logger
	subs      SubscriptionSource
	publisher TaskPublisher
	registry  *metrics.Registry
}

// NewEmitter creates an emitter.
func NewEmitter(logger *slog.Logger, subs SubscriptionSource, publisher TaskPublisher, registry *metrics.Registry) *Emitter {
	return &Emitter{logger: logger, subs: subs, publisher: publisher, registry: registry}
}

// Emit enqueues delivery tasks for every active subscription wanting
// the event type. Returns the number of tasks enqueued.
func (e *Emitter) Emit(ctx context.Context, ev domain.Event) (int, error) {
	subs, err := e.subs.ActiveSubscriptions(ctx, ev.Type)
	if err != nil {
		return 0, fmt.Errorf("emit %s: %w", ev.Type, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(deliveryBody{Event: ev.Type, Data: eventData{
		EventID: ev.ID,
		JobID:   ev.JobID,
		Data:    ev.Data,
	}})
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}

	enqueued := 0
	for _, sub := range subs {
		task := domain.DeliveryTask{
			SubscriptionID: sub.ID,
			EventType:      ev.Type,
			EventID:        ev.ID,
			Payload:        payload,
		}
		if err := e.publisher.PublishDelivery(ctx, task); err != nil {
			e.logger.Error("Failed to enqueue delivery task",
				slog.String("event_type", ev.Type),
				slog.String("subscription_id", sub.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}

	e.registry.Add(metrics.DomainWebhooks, "emitted", ev.Type, int64(enqueued))
	e.logger.Debug("Event fanned out",
		slog.String("event_type", ev.Type),
		slog.String("event_id", ev.ID),
		slog.Int("tasks", enqueued),
	)
	return enqueued, nil
}

// deliveryBody is the wire format POSTed to subscribers:
// {"event": <type>, "data": {...}}.
type deliveryBody struct {
	Event string    `json:"event"`
	Data  eventData `json:"data"`
}

type eventData struct {
	EventID string          `json:"event_id"`
	JobID   string          `json:"job_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
