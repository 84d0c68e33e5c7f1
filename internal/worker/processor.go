package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealscout/pipeline/internal/adapter"
	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/events"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/vendorcall"
)

// JobStore is the persistence the processor needs.
type JobStore interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string, result *domain.JobResult) error
	RequeueWithError(ctx context.Context, jobID, errMsg string) (int, error)
	MarkFailed(ctx context.Context, jobID, errMsg string, consumeAttempt bool) error
	CompleteMatchmakingJob(ctx context.Context, jobID string, matchedCount int) error
	CompletedResults(ctx context.Context, kinds []string) ([]json.RawMessage, error)
}

// JobPublisher republishes a job message after a requeue.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg domain.JobMessage) error
}

// VendorCaller is the gateway surface enrichment needs.
type VendorCaller interface {
	Call(ctx context.Context, req vendorcall.Request) (*vendorcall.Response, error)
}

const enrichAdapterVersion = "enrich/1.2.0"
const matchmakeVersion = "matchmake/1.0.0"

// enrichCostCents is the per-call budget reservation for property
// detail lookups.
const enrichCostCents = 50

// Processor executes one claimed job and persists the outcome.
type Processor struct {
	logger     *slog.Logger
	store      JobStore
	publisher  JobPublisher
	adapters   *adapter.Registry
	gateway    VendorCaller
	bus        *events.Bus
	registry   *metrics.Registry
	jobTimeout time.Duration
}

// NewProcessor creates a processor.
func NewProcessor(
	logger *slog.Logger,
	store JobStore,
	publisher JobPublisher,
	adapters *adapter.Registry,
	gateway VendorCaller,
	bus *events.Bus,
	registry *metrics.Registry,
	jobTimeout time.Duration,
) *Processor {
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	return &Processor{
		logger:     logger,
		store:      store,
		publisher:  publisher,
		adapters:   adapters,
		gateway:    gateway,
		bus:        bus,
		registry:   registry,
		jobTimeout: jobTimeout,
	}
}

// Process claims and executes one job message. Returning nil means the
// message is done (ACK), including handled failures that were requeued
// through the database or marked terminal.
func (p *Processor) Process(ctx context.Context, msg *domain.JobMessage) error {
	job, err := p.store.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			p.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	if err := domain.ValidatePayload(job.Kind, job.Payload); err != nil {
		p.logger.Error("Job payload failed validation",
			slog.String("job_id", job.JobID),
			slog.String("kind", job.Kind),
			slog.String("error", err.Error()),
		)
		if markErr := p.store.MarkFailed(ctx, job.JobID, err.Error(), false); markErr != nil {
			p.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.JobID),
				slog.String("error", markErr.Error()),
			)
		}
		p.emitJobFailed(ctx, job, err)
		return fmt.Errorf("invalid payload: %w", err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	start := time.Now()
	result, execErr := p.execute(jobCtx, job)
	p.registry.Observe(metrics.DomainJobs, "duration", job.Kind, time.Since(start))

	if execErr != nil {
		return p.handleFailure(ctx, job, execErr)
	}

	if err := p.store.MarkCompleted(ctx, job.JobID, result); err != nil {
		p.logger.Error("Failed to persist job result, retrying once",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		if err := p.store.MarkCompleted(ctx, job.JobID, result); err != nil {
			// The work itself succeeded; a requeue would redo paid
			// calls against a job no longer in QUEUED. The row stays
			// RUNNING with the result lost.
			p.logger.Error("Job result could not be persisted",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
			p.registry.Inc(metrics.DomainJobs, "result_persist_lost", job.Kind)
			return nil
		}
	}

	p.registry.Inc(metrics.DomainJobs, "completed", job.Kind)
	p.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.String("kind", job.Kind),
		slog.Int("items", len(result.Items)),
	)

	p.emitCompleted(ctx, job, result)
	return nil
}

// handleFailure routes an execution error: cap exhaustion is terminal
// without consuming a retry, retries left means requeue plus
// republish, otherwise the job fails terminally.
func (p *Processor) handleFailure(ctx context.Context, job *domain.Job, execErr error) error {
	p.logger.Error("Job execution failed",
		slog.String("job_id", job.JobID),
		slog.String("kind", job.Kind),
		slog.Int("attempt", job.Attempt),
		slog.String("error", execErr.Error()),
	)

	if errors.Is(execErr, vendorcall.ErrCapExceeded) {
		if err := p.store.MarkFailed(ctx, job.JobID, execErr.Error(), false); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w", err))
		}
		p.registry.Inc(metrics.DomainJobs, "failed", "cap_exceeded")
		p.emitJobFailed(ctx, job, execErr)
		return nil
	}

	if domain.IsValidation(execErr) {
		if err := p.store.MarkFailed(ctx, job.JobID, execErr.Error(), false); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w", err))
		}
		p.registry.Inc(metrics.DomainJobs, "failed", "validation")
		p.emitJobFailed(ctx, job, execErr)
		return nil
	}

	if job.Attempt+1 < job.MaxAttempts {
		attempt, err := p.store.RequeueWithError(ctx, job.JobID, execErr.Error())
		if err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to requeue job: %w", err))
		}
		if err := p.publisher.PublishJob(ctx, domain.JobMessage{JobID: job.JobID}); err != nil {
			// Row is QUEUED; redelivering the original message lets
			// another claim pick it up.
			return domain.NewRetryableError(fmt.Errorf("failed to republish job: %w", err))
		}
		p.registry.Inc(metrics.DomainJobs, "retried", job.Kind)
		p.logger.Info("Job requeued for retry",
			slog.String("job_id", job.JobID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", job.MaxAttempts),
		)
		return nil
	}

	if err := p.store.MarkFailed(ctx, job.JobID, execErr.Error(), true); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w", err))
	}
	p.registry.Inc(metrics.DomainJobs, "failed", job.Kind)
	p.logger.Warn("Job exceeded max attempts",
		slog.String("job_id", job.JobID),
		slog.Int("attempt", job.Attempt+1),
		slog.Int("max_attempts", job.MaxAttempts),
	)
	p.emitJobFailed(ctx, job, execErr)
	return nil
}

// execute runs the kind-specific work.
func (p *Processor) execute(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	switch job.Kind {
	case domain.JobKindScrape:
		return p.executeScrape(ctx, job)
	case domain.JobKindEnrich:
		return p.executeEnrich(ctx, job)
	case domain.JobKindMatchmake:
		return p.executeMatchmake(ctx, job)
	default:
		return nil, domain.NewValidationError("kind", "unknown job kind "+job.Kind)
	}
}

func (p *Processor) executeScrape(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	var payload domain.ScrapePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, domain.NewValidationError("", err.Error())
	}

	a, err := p.adapters.Get(payload.Source)
	if err != nil {
		return nil, domain.NewValidationError("source", err.Error())
	}

	res, err := a.Fetch(ctx, payload.Zip, adapter.DateRange{
		From: payload.FromDate,
		To:   payload.ToDate,
	}, payload.Filters)
	if err != nil {
		return nil, err
	}

	return &domain.JobResult{
		Items: res.Items,
		Meta: domain.ResultMeta{
			FiltersApplied: payload.FilterKeys(),
			AdapterVersion: res.Version,
			ScrapedCount:   len(res.Items),
			TotalItems:     res.TotalItems,
		},
	}, nil
}

func (p *Processor) executeEnrich(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	var payload domain.EnrichPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, domain.NewValidationError("", err.Error())
	}

	provider := payload.Source
	if provider == "" {
		provider = "countydeeds"
	}

	resp, err := p.gateway.Call(ctx, vendorcall.Request{
		Provider:       provider,
		Endpoint:       "property/detail",
		Params:         map[string]string{"property_id": payload.PropertyID},
		EstimatedCents: enrichCostCents,
	})
	if err != nil {
		return nil, err
	}

	p.registry.Inc(metrics.DomainEnrichment, "completed", provider)

	return &domain.JobResult{
		Items: resp.Items,
		Meta: domain.ResultMeta{
			AdapterVersion: enrichAdapterVersion,
			ScrapedCount:   len(resp.Items),
			TotalItems:     len(resp.Items),
		},
	}, nil
}

func (p *Processor) executeMatchmake(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	var payload domain.MatchmakePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, domain.NewValidationError("", err.Error())
	}

	rawResults, err := p.store.CompletedResults(ctx, []string{domain.JobKindScrape, domain.JobKindEnrich})
	if err != nil {
		return nil, fmt.Errorf("load candidate records: %w", err)
	}

	var matched []domain.Record
	total := 0
	for _, raw := range rawResults {
		var res domain.JobResult
		if err := json.Unmarshal(raw, &res); err != nil {
			continue
		}
		for _, item := range res.Items {
			total++
			if matchesRecord(item, payload.Filter) {
				matched = append(matched, item)
			}
		}
	}

	if err := p.store.CompleteMatchmakingJob(ctx, job.JobID, len(matched)); err != nil {
		return nil, fmt.Errorf("persist matchmaking outcome: %w", err)
	}

	p.registry.Inc(metrics.DomainMatchmaking, "completed", payload.Filter.Source)
	p.logger.Info("Matchmaking run finished",
		slog.String("job_id", job.JobID),
		slog.Int("matched", len(matched)),
		slog.Int("scanned", total),
	)

	return &domain.JobResult{
		Items: matched,
		Meta: domain.ResultMeta{
			AdapterVersion: matchmakeVersion,
			ScrapedCount:   len(matched),
			TotalItems:     total,
		},
	}, nil
}

// matchesRecord applies a matchmaking filter to one record.
func matchesRecord(item domain.Record, filter domain.MatchFilter) bool {
	if filter.PropertyID != "" && item.PropertyID != filter.PropertyID {
		return false
	}
	if filter.MinScore > 0 && item.Score < filter.MinScore {
		return false
	}
	return true
}

// emitCompleted publishes job.completed plus the kind-specific event.
func (p *Processor) emitCompleted(ctx context.Context, job *domain.Job, result *domain.JobResult) {
	data, err := json.Marshal(map[string]any{
		"kind":          job.Kind,
		"scraped_count": result.Meta.ScrapedCount,
		"total_items":   result.Meta.TotalItems,
	})
	if err != nil {
		data = nil
	}
	p.bus.Publish(ctx, domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventJobCompleted,
		JobID:     job.JobID,
		Data:      data,
		EmittedAt: time.Now().UTC(),
	})

	switch job.Kind {
	case domain.JobKindEnrich:
		p.bus.Publish(ctx, domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventEnrichmentCompleted,
			JobID:     job.JobID,
			Data:      enrichmentEventData(job, result),
			EmittedAt: time.Now().UTC(),
		})
	case domain.JobKindMatchmake:
		p.bus.Publish(ctx, domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventMatchmakingComplete,
			JobID:     job.JobID,
			Data:      data,
			EmittedAt: time.Now().UTC(),
		})
	}
}

func (p *Processor) emitJobFailed(ctx context.Context, job *domain.Job, cause error) {
	data, err := json.Marshal(map[string]any{
		"kind":  job.Kind,
		"error": cause.Error(),
	})
	if err != nil {
		data = nil
	}
	p.bus.Publish(ctx, domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventJobFailed,
		JobID:     job.JobID,
		Data:      data,
		EmittedAt: time.Now().UTC(),
	})
}

// EnrichmentOutcome is the enrichment.completed event payload the
// matchmaking trigger consumes.
type EnrichmentOutcome struct {
	PropertyID string  `json:"property_id"`
	Score      float64 `json:"score"`
}

func enrichmentEventData(job *domain.Job, result *domain.JobResult) json.RawMessage {
	var payload domain.EnrichPayload
	_ = json.Unmarshal(job.Payload, &payload)

	score := 0.0
	for _, item := range result.Items {
		if item.Score > score {
			score = item.Score
		}
	}

	data, err := json.Marshal(EnrichmentOutcome{
		PropertyID: payload.PropertyID,
		Score:      score,
	})
	if err != nil {
		return nil
	}
	return data
}
