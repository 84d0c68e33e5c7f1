// Package bulk expands bulk scrape requests into individual jobs:
// county expansion, per-pair duplicate detection, and per-item skip
// accounting instead of all-or-nothing batches.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/geo"
	"github.com/dealscout/pipeline/internal/metrics"
)

// JobStore provides the reads the planner needs for duplicate
// detection.
type JobStore interface {
	TodaysScrapeJobs(ctx context.Context) ([]domain.Job, error)
}

// Enqueuer creates and publishes one job. The planner never publishes
// directly; the enqueue path is shared with single-job submission.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload json.RawMessage) (*domain.Job, error)
}

// Request is one bulk enqueue: every source crossed with every zip,
// counties expanded first.
type Request struct {
	Sources  []string          `json:"sources"`
	Zips     []string          `json:"zips"`
	Counties []string          `json:"counties"`
	FromDate string            `json:"from_date,omitempty"`
	ToDate   string            `json:"to_date,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// CreatedItem is one enqueued job.
type CreatedItem struct {
	JobID  string `json:"job_id"`
	Source string `json:"source"`
	Zip    string `json:"zip"`
}

// SkippedItem is one pair that produced no job, with the reason.
type SkippedItem struct {
	Source string `json:"source,omitempty"`
	Zip    string `json:"zip,omitempty"`
	County string `json:"county,omitempty"`
	Reason string `json:"reason"`
}

// Result accumulates per-pair outcomes for the whole batch.
type Result struct {
	Created []CreatedItem `json:"created"`
	Skipped []SkippedItem `json:"skipped"`
}

// Planner expands and enqueues bulk scrape batches.
type Planner struct {
	logger   *slog.Logger
	store    JobStore
	enqueuer Enqueuer
	sources  []string
	registry *metrics.Registry
}

// NewPlanner creates a planner. knownSources is the adapter registry's
// source list; unknown sources are skipped per pair, not rejected as a
// batch.
func NewPlanner(logger *slog.Logger, store JobStore, enqueuer Enqueuer, knownSources []string, registry *metrics.Registry) *Planner {
	return &Planner{
		logger:   logger,
		store:    store,
		enqueuer: enqueuer,
		sources:  knownSources,
		registry: registry,
	}
}

// Plan expands the request and enqueues one scrape job per new
// (source, zip) pair. Duplicate detection is same-day and best-effort:
// today's scrape jobs are loaded once and matched in process on the
// payload's source and zip, so a concurrent insert between check and
// create can slip through.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if len(req.Sources) == 0 {
		return nil, domain.NewValidationError("sources", "at least one source is required")
	}
	if len(req.Zips) == 0 && len(req.Counties) == 0 {
		return nil, domain.NewValidationError("zips", "at least one zip or county is required")
	}

	result := &Result{Created: []CreatedItem{}, Skipped: []SkippedItem{}}

	zips, seenZips := make([]string, 0, len(req.Zips)), make(map[string]bool)
	for _, zip := range req.Zips {
		if !seenZips[zip] {
			seenZips[zip] = true
			zips = append(zips, zip)
		}
	}
	for _, county := range req.Counties {
		countyZips, ok := geo.ZipsForCounty(county)
		if !ok {
			result.Skipped = append(result.Skipped, SkippedItem{
				County: county,
				Reason: "unknown county",
			})
			continue
		}
		for _, zip := range countyZips {
			if !seenZips[zip] {
				seenZips[zip] = true
				zips = append(zips, zip)
			}
		}
	}

	existing, err := p.existingPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load today's scrape jobs: %w", err)
	}

	for _, source := range req.Sources {
		if !p.knownSource(source) {
			result.Skipped = append(result.Skipped, SkippedItem{
				Source: source,
				Reason: "unknown source",
			})
			continue
		}
		for _, zip := range zips {
			key := pairKey(source, zip)
			if existing[key] {
				result.Skipped = append(result.Skipped, SkippedItem{
					Source: source,
					Zip:    zip,
					Reason: "duplicate for today",
				})
				p.registry.Inc(metrics.DomainJobs, "bulk_skipped", "duplicate")
				continue
			}

			payload, err := json.Marshal(domain.ScrapePayload{
				Source:   source,
				Zip:      zip,
				FromDate: req.FromDate,
				ToDate:   req.ToDate,
				Filters:  req.Filters,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal scrape payload: %w", err)
			}

			job, err := p.enqueuer.Enqueue(ctx, domain.JobKindScrape, payload)
			if err != nil {
				result.Skipped = append(result.Skipped, SkippedItem{
					Source: source,
					Zip:    zip,
					Reason: fmt.Sprintf("enqueue failed: %v", err),
				})
				p.logger.Error("Bulk enqueue pair failed",
					slog.String("source", source),
					slog.String("zip", zip),
					slog.String("error", err.Error()),
				)
				continue
			}

			existing[key] = true
			result.Created = append(result.Created, CreatedItem{
				JobID:  job.JobID,
				Source: source,
				Zip:    zip,
			})
			p.registry.Inc(metrics.DomainJobs, "bulk_created", source)
		}
	}

	p.logger.Info("Bulk enqueue complete",
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// existingPairs builds today's (source, zip) set from a broad query
// filtered in process on the payload fields.
func (p *Planner) existingPairs(ctx context.Context) (map[string]bool, error) {
	jobs, err := p.store.TodaysScrapeJobs(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]bool, len(jobs))
	for i := range jobs {
		var payload domain.ScrapePayload
		if err := json.Unmarshal(jobs[i].Payload, &payload); err != nil {
			continue
		}
		pairs[pairKey(payload.Source, payload.Zip)] = true
	}
	return pairs, nil
}

func (p *Planner) knownSource(source string) bool {
	for _, s := range p.sources {
		if s == source {
			return true
		}
	}
	return false
}

func pairKey(source, zip string) string {
	return source + "|" + zip
}
