package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
)

// TriggerStore is the persistence the auto-trigger needs to enqueue a
// matchmaking run.
type TriggerStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	CreateMatchmakingJob(ctx context.Context, m *domain.MatchmakingJob) error
}

// MatchTrigger enqueues an automatic matchmaking run when an
// enrichment outcome scores above the configured threshold.
type MatchTrigger struct {
	logger    *slog.Logger
	store     TriggerStore
	publisher JobPublisher
	registry  *metrics.Registry
	threshold float64
}

// NewMatchTrigger creates the trigger.
func NewMatchTrigger(logger *slog.Logger, store TriggerStore, publisher JobPublisher, registry *metrics.Registry, threshold float64) *MatchTrigger {
	if threshold <= 0 {
		threshold = 70
	}
	return &MatchTrigger{
		logger:    logger,
		store:     store,
		publisher: publisher,
		registry:  registry,
		threshold: threshold,
	}
}

// Handle consumes one enrichment.completed event. Scores at or below
// the threshold are ignored.
func (t *MatchTrigger) Handle(ctx context.Context, ev domain.Event) error {
	var outcome EnrichmentOutcome
	if err := json.Unmarshal(ev.Data, &outcome); err != nil {
		return fmt.Errorf("parse enrichment outcome: %w", err)
	}

	if outcome.Score <= t.threshold {
		t.logger.Debug("Enrichment score below matchmaking threshold",
			slog.String("property_id", outcome.PropertyID),
			slog.Float64("score", outcome.Score),
			slog.Float64("threshold", t.threshold),
		)
		return nil
	}

	payload, err := json.Marshal(domain.MatchmakePayload{
		Filter: domain.MatchFilter{
			PropertyID: outcome.PropertyID,
			Source:     domain.MatchSourceAuto,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal matchmake payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		Kind:        domain.JobKindMatchmake,
		Payload:     payload,
		Status:      domain.JobStatusQueued,
		MaxAttempts: domain.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create auto matchmake job: %w", err)
	}

	filter, err := json.Marshal(domain.MatchFilter{
		PropertyID: outcome.PropertyID,
		Source:     domain.MatchSourceAuto,
	})
	if err != nil {
		return fmt.Errorf("marshal matchmaking filter: %w", err)
	}
	if err := t.store.CreateMatchmakingJob(ctx, &domain.MatchmakingJob{
		ID:        uuid.New().String(),
		JobID:     job.JobID,
		Filter:    filter,
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("create matchmaking row: %w", err)
	}

	if err := t.publisher.PublishJob(ctx, domain.JobMessage{JobID: job.JobID}); err != nil {
		return fmt.Errorf("publish auto matchmake job: %w", err)
	}

	t.registry.Inc(metrics.DomainMatchmaking, "auto_triggered", "")
	t.logger.Info("Matchmaking auto-triggered",
		slog.String("job_id", job.JobID),
		slog.String("property_id", outcome.PropertyID),
		slog.Float64("score", outcome.Score),
	)
	return nil
}
