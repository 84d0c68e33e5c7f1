package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
)

// DeliveryStore is the persistence the deliverer needs: subscription
// lookup, per-attempt logging, and dead-letter bookkeeping.
type DeliveryStore interface {
	GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error)
	AppendLog(ctx context.Context, log *domain.WebhookDeliveryLog) error
	RecordFailure(ctx context.Context, f *domain.WebhookDeliveryFailure) error
	ResolveFailure(ctx context.Context, id string) error
}

// DelivererConfig tunes the delivery attempt loop.
type DelivererConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	PostTimeout time.Duration
}

// Deliverer executes one delivery task: signed POSTs with bounded
// retries, a log row per attempt, and a dead-letter row on exhaustion.
type Deliverer struct {
	logger   *slog.Logger
	store    DeliveryStore
	registry *metrics.Registry
	client   *http.Client
	cfg      DelivererConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a deliverer.
func NewDeliverer(logger *slog.Logger, store DeliveryStore, registry *metrics.Registry, cfg DelivererConfig) *Deliverer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 5 * time.Second
	}
	return &Deliverer{
		logger:   logger,
		store:    store,
		registry: registry,
		client:   &http.Client{},
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Deliver runs the attempt loop for one task. A task for an inactive
// or deleted subscription is dropped without dead-lettering unless the
// task is itself a replay.
func (d *Deliverer) Deliver(ctx context.Context, task domain.DeliveryTask) error {
	sub, err := d.store.GetSubscription(ctx, task.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return fmt.Errorf("deliver %s: %w", task.EventType, err)
		}
		// Infra failure, not a delivery outcome. The task must return
		// to the durable queue rather than be dropped.
		return domain.NewRetryableError(fmt.Errorf("deliver %s: %w", task.EventType, err))
	}
	if !sub.IsActive && task.FailureID == "" {
		d.logger.Debug("Dropping delivery for inactive subscription",
			slog.String("subscription_id", sub.ID),
			slog.String("event_type", task.EventType),
		)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.sleep(ctx, d.backoff(attempt-1)); err != nil {
				// Shutdown mid-backoff; requeue so another worker
				// finishes the attempt loop.
				return domain.NewRetryableError(fmt.Errorf("delivery interrupted: %w", err))
			}
		}

		start := time.Now()
		err := d.post(ctx, sub, task)
		elapsed := time.Since(start)
		d.registry.Observe(metrics.DomainWebhooks, "delivery_latency", task.EventType, elapsed)

		logRow := &domain.WebhookDeliveryLog{
			SubscriptionID: sub.ID,
			EventType:      task.EventType,
			AttemptsMade:   attempt,
			DurationMs:     elapsed.Milliseconds(),
		}
		if err == nil {
			logRow.Status = domain.DeliveryStatusDelivered
		} else {
			logRow.Status = domain.DeliveryStatusFailed
		}
		if logErr := d.store.AppendLog(ctx, logRow); logErr != nil {
			d.logger.Error("Failed to append delivery log",
				slog.String("subscription_id", sub.ID),
				slog.String("error", logErr.Error()),
			)
		}

		if err == nil {
			d.registry.Inc(metrics.DomainWebhooks, "delivered", task.EventType)
			if task.FailureID != "" {
				if resolveErr := d.store.ResolveFailure(ctx, task.FailureID); resolveErr != nil {
					d.logger.Error("Failed to resolve dead letter",
						slog.String("failure_id", task.FailureID),
						slog.String("error", resolveErr.Error()),
					)
				} else {
					d.registry.Inc(metrics.DomainWebhooks, "replay_resolved", task.EventType)
				}
			}
			return nil
		}

		lastErr = err
		d.logger.Warn("Webhook delivery attempt failed",
			slog.String("subscription_id", sub.ID),
			slog.String("event_type", task.EventType),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", d.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)
	}

	d.registry.Inc(metrics.DomainWebhooks, "dead_lettered", task.EventType)
	if task.FailureID != "" {
		// Replay failed again; leave the original row unresolved.
		d.logger.Warn("Replay exhausted attempts, dead letter stays open",
			slog.String("failure_id", task.FailureID),
		)
		return nil
	}

	failure := &domain.WebhookDeliveryFailure{
		SubscriptionID: sub.ID,
		EventType:      task.EventType,
		Payload:        task.Payload,
		Attempts:       d.cfg.MaxAttempts,
	}
	if err := d.store.RecordFailure(ctx, failure); err != nil {
		return domain.NewRetryableError(
			fmt.Errorf("record dead letter: %w (delivery error: %v)", err, lastErr))
	}
	d.logger.Error("Webhook delivery dead-lettered",
		slog.String("subscription_id", sub.ID),
		slog.String("event_type", task.EventType),
		slog.Int("attempts", d.cfg.MaxAttempts),
	)
	return nil
}

// post performs one signed POST. Any non-2xx status is a failed
// attempt; timeouts are bounded by PostTimeout.
func (d *Deliverer) post(ctx context.Context, sub *domain.WebhookSubscription, task domain.DeliveryTask) error {
	postCtx, cancel := context.WithTimeout(ctx, d.cfg.PostTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, sub.TargetURL, bytes.NewReader(task.Payload))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, task.EventType)
	req.Header.Set(SignatureHeader, Sign(task.Payload, sub.SigningSecret))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscriber returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) backoff(attempt int) time.Duration {
	delay := float64(d.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(d.cfg.MaxDelay) {
		delay = float64(d.cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
