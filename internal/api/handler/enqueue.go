package handler

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

// JobCreator is the storage surface enqueueing needs.
type JobCreator interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	CreateMatchmakingJob(ctx context.Context, m *domain.MatchmakingJob) error
}

// JobPublisher puts a job message onto the jobs queue.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg domain.JobMessage) error
}

// EnqueueService validates, persists, and publishes one job. Single
// and bulk submission both go through it.
type EnqueueService struct {
	logger    *slog.Logger
	store     JobCreator
	publisher JobPublisher
	registry  *metrics.Registry
}

// NewEnqueueService creates the service.
func NewEnqueueService(logger *slog.Logger, store JobCreator, publisher JobPublisher, registry *metrics.Registry) *EnqueueService {
	return &EnqueueService{
		logger:    logger,
		store:     store,
		publisher: publisher,
		registry:  registry,
	}
}

// Enqueue creates a QUEUED job row and publishes its id. The payload
// is validated against the kind's schema first; a validation error is
// returned synchronously and nothing is persisted.
func (s *EnqueueService) Enqueue(ctx context.Context, kind string, payload json.RawMessage) (*domain.Job, error) {
	if err := domain.ValidatePayload(kind, payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		Status:      domain.JobStatusQueued,
		MaxAttempts: domain.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	if kind == domain.JobKindMatchmake {
		var p domain.MatchmakePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("parse matchmake payload: %w", err)
		}
		filter, err := json.Marshal(p.Filter)
		if err != nil {
			return nil, fmt.Errorf("marshal matchmaking filter: %w", err)
		}
		if err := s.store.CreateMatchmakingJob(ctx, &domain.MatchmakingJob{
			ID:        uuid.New().String(),
			JobID:     job.JobID,
			Filter:    filter,
			Status:    domain.JobStatusQueued,
			CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("persist matchmaking row: %w", err)
		}
	}

	if err := s.publisher.PublishJob(ctx, domain.JobMessage{JobID: job.JobID}); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}

	s.registry.Inc(metrics.DomainJobs, "enqueued", kind)
	s.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("kind", kind),
	)
	return job, nil
}
