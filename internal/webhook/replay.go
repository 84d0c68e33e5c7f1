package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
)

// ReplayStore is the persistence the replayer needs.
type ReplayStore interface {
	GetFailure(ctx context.Context, id string) (*domain.WebhookDeliveryFailure, error)
	UnresolvedFailures(ctx context.Context, filter FailureFilter) ([]domain.WebhookDeliveryFailure, error)
	GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error)
}

// Replayer re-enqueues dead-lettered deliveries using the stored
// payload and the subscription's current target URL and secret.
type Replayer struct {
	logger    *slog.Logger
	store     ReplayStore
	publisher TaskPublisher
	registry  *metrics.Registry
}

// NewReplayer creates a replayer.
func NewReplayer(logger *slog.Logger, store ReplayStore, publisher TaskPublisher, registry *metrics.Registry) *Replayer {
	return &Replayer{
		logger:    logger,
		store:     store,
		publisher: publisher,
		registry:  registry,
	}
}

// Replay enqueues a single dead-lettered delivery for another attempt
// cycle. Already-resolved failures are rejected.
func (r *Replayer) Replay(ctx context.Context, failureID string) error {
	failure, err := r.store.GetFailure(ctx, failureID)
	if err != nil {
		return err
	}
	if failure.IsResolved {
		return domain.NewValidationError("failure_id", "delivery failure is already resolved")
	}
	return r.enqueue(ctx, failure)
}

// ReplayAll enqueues every unresolved failure matching the filter and
// returns how many were enqueued. Individual enqueue errors are logged
// and skipped so one bad row does not stall the batch.
func (r *Replayer) ReplayAll(ctx context.Context, filter FailureFilter) (int, error) {
	failures, err := r.store.UnresolvedFailures(ctx, filter)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for i := range failures {
		if err := r.enqueue(ctx, &failures[i]); err != nil {
			r.logger.Error("Failed to enqueue replay",
				slog.String("failure_id", failures[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (r *Replayer) enqueue(ctx context.Context, failure *domain.WebhookDeliveryFailure) error {
	sub, err := r.store.GetSubscription(ctx, failure.SubscriptionID)
	if err != nil {
		return fmt.Errorf("replay %s: %w", failure.ID, err)
	}
	if !sub.IsActive {
		return domain.NewValidationError("subscription_id", "subscription is no longer active")
	}

	task := domain.DeliveryTask{
		SubscriptionID: failure.SubscriptionID,
		EventType:      failure.EventType,
		Payload:        failure.Payload,
		FailureID:      failure.ID,
	}
	if err := r.publisher.PublishDelivery(ctx, task); err != nil {
		return fmt.Errorf("publish replay: %w", err)
	}

	r.registry.Inc(metrics.DomainWebhooks, "replayed", failure.EventType)
	r.logger.Info("Replay enqueued",
		slog.String("failure_id", failure.ID),
		slog.String("subscription_id", failure.SubscriptionID),
		slog.String("event_type", failure.EventType),
	)
	return nil
}
