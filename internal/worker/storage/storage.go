// Package storage handles all database operations for the worker
// service: claiming jobs, recording outcomes, and matchmaking rows.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dealscout/pipeline/internal/domain"
)

// Storage wraps the database handle for the worker service.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob attempts to claim a job using optimistic locking: the
// update only succeeds while the row is still QUEUED, so two workers
// racing for the same message cannot both run it.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
		RETURNING job_id, kind, payload, status, attempt, max_attempts, previous_errors, result, created_at, updated_at`,
		domain.JobStatusRunning, jobID, domain.JobStatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("kind", job.Kind),
		slog.Int("attempt", job.Attempt),
	)

	return &job, nil
}

// MarkCompleted persists the result and moves the job to COMPLETED.
func (s *Storage) MarkCompleted(ctx context.Context, jobID string, result *domain.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, result = $2, updated_at = NOW()
		WHERE job_id = $3`,
		domain.JobStatusCompleted, resultJSON, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusCompleted),
	)

	return nil
}

// RequeueWithError appends the error to the job's history, consumes
// one attempt, and puts the row back to QUEUED for republishing.
// Returns the new attempt count.
func (s *Storage) RequeueWithError(ctx context.Context, jobID, errMsg string) (int, error) {
	entry, err := errorEntry(errMsg)
	if err != nil {
		return 0, err
	}

	var attempt int
	err = s.db.GetContext(ctx, &attempt, `
		UPDATE jobs
		SET status = $1,
		    attempt = attempt + 1,
		    previous_errors = COALESCE(previous_errors, '[]'::jsonb) || $2::jsonb,
		    updated_at = NOW()
		WHERE job_id = $3
		RETURNING attempt`,
		domain.JobStatusQueued, entry, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue job: %w", err)
	}

	s.logger.Info("Job requeued after failure",
		slog.String("job_id", jobID),
		slog.Int("attempt", attempt),
	)

	return attempt, nil
}

// MarkFailed appends the error and moves the job to terminal FAILED.
// consumeAttempt is false for budget-cap failures, which must not eat
// a retry.
func (s *Storage) MarkFailed(ctx context.Context, jobID, errMsg string, consumeAttempt bool) error {
	entry, err := errorEntry(errMsg)
	if err != nil {
		return err
	}

	increment := 0
	if consumeAttempt {
		increment = 1
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1,
		    attempt = attempt + $2,
		    previous_errors = COALESCE(previous_errors, '[]'::jsonb) || $3::jsonb,
		    updated_at = NOW()
		WHERE job_id = $4`,
		domain.JobStatusFailed, increment, entry, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusFailed),
	)

	return nil
}

// errorEntry renders a one-element jsonb array for appending to
// previous_errors.
func errorEntry(errMsg string) ([]byte, error) {
	entry, err := json.Marshal([]domain.JobError{{Message: errMsg, At: time.Now().UTC()}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error entry: %w", err)
	}
	return entry, nil
}

// CreateJob inserts a new QUEUED job, used by the matchmaking
// auto-trigger.
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

// CompleteMatchmakingJob records a finished matchmaking run.
func (s *Storage) CompleteMatchmakingJob(ctx context.Context, jobID string, matchedCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE matchmaking_jobs
		SET status = $1, matched_count = $2, completed_at = NOW()
		WHERE job_id = $3`,
		domain.JobStatusCompleted, matchedCount, jobID)
	if err != nil {
		return fmt.Errorf("complete matchmaking job: %w", err)
	}
	return nil
}

// CompletedResults returns the result payloads of completed jobs of
// the given kinds, the corpus a matchmaking run filters over.
func (s *Storage) CompletedResults(ctx context.Context, kinds []string) ([]json.RawMessage, error) {
	query, args, err := sqlx.In(`
		SELECT result FROM jobs
		WHERE status = ? AND kind IN (?) AND result IS NOT NULL`,
		domain.JobStatusCompleted, kinds)
	if err != nil {
		return nil, fmt.Errorf("build results query: %w", err)
	}

	var results []json.RawMessage
	if err := s.db.SelectContext(ctx, &results, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list completed results: %w", err)
	}
	return results, nil
}
