// Package storage is the API service's persistence layer: job rows,
// matchmaking rows, and the listing queries operators use.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dealscout/pipeline/internal/domain"
)

// Storage wraps the database handle for the API service.
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a Storage.
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// CreateJob inserts a new QUEUED job row.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(job_id, kind, payload, status, attempt, max_attempts, previous_errors, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.JobID, job.Kind, []byte(job.Payload), job.Status,
		job.Attempt, job.MaxAttempts, job.PreviousErrors,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJobByID loads one job row.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT job_id, kind, payload, status, attempt, max_attempts, previous_errors, result, created_at, updated_at
		FROM jobs
		WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status string
	Kind   string
	Limit  int
	Offset int
	// SortDesc orders newest first when set; default is oldest first.
	SortDesc bool
}

// ListJobs returns jobs matching the filter plus the unpaginated total.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, int, error) {
	where := ""
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs WHERE 1=1" + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	order := "ASC"
	if filter.SortDesc {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT job_id, kind, payload, status, attempt, max_attempts, previous_errors, result, created_at, updated_at
		FROM jobs
		WHERE 1=1%s
		ORDER BY created_at %s`, where, order)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// TodaysScrapeJobs returns scrape jobs created since UTC midnight, for
// bulk duplicate detection. The (source, zip) match happens in-process
// on the payload.
func (s *Storage) TodaysScrapeJobs(ctx context.Context) ([]domain.Job, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT job_id, kind, payload, status, attempt, max_attempts, previous_errors, result, created_at, updated_at
		FROM jobs
		WHERE kind = $1 AND created_at >= $2`,
		domain.JobKindScrape, dayStart)
	if err != nil {
		return nil, fmt.Errorf("list today's scrape jobs: %w", err)
	}
	return jobs, nil
}

// CreateMatchmakingJob inserts the matchmaking row paired with a
// matchmake queue job.
func (s *Storage) CreateMatchmakingJob(ctx context.Context, m *domain.MatchmakingJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matchmaking_jobs
			(id, job_id, filter, status, matched_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		m.ID, m.JobID, []byte(m.Filter), m.Status, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert matchmaking job: %w", err)
	}
	return nil
}

// GetMatchmakingByJobID loads the matchmaking row for a queue job.
func (s *Storage) GetMatchmakingByJobID(ctx context.Context, jobID string) (*domain.MatchmakingJob, error) {
	var m domain.MatchmakingJob
	err := s.db.GetContext(ctx, &m, `
		SELECT id, job_id, filter, status, matched_count, completed_at, created_at
		FROM matchmaking_jobs
		WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get matchmaking job: %w", err)
	}
	return &m, nil
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
