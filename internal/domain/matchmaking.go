package domain

import (
	"encoding/json"
	"time"
)

// MatchmakingJob records one matchmaking run. It is created together
// with its matchmake queue job; the worker fills matched_count and
// completed_at when the run finishes.
type MatchmakingJob struct {
	ID           string          `db:"id"`
	JobID        string          `db:"job_id"`
	Filter       json.RawMessage `db:"filter"`
	Status       string          `db:"status"`
	MatchedCount int             `db:"matched_count"`
	CompletedAt  *time.Time      `db:"completed_at"`
	CreatedAt    time.Time       `db:"created_at"`
}
