package domain

import (
	"encoding/json"
	"time"
)

// Job kinds
const (
	JobKindScrape    = "scrape"
	JobKindEnrich    = "enrich"
	JobKindMatchmake = "matchmake"
)

// Job status constants
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// DefaultMaxAttempts is the retry budget a job receives unless the
// config overrides it.
const DefaultMaxAttempts = 3

// JobError is one entry of a job's previous_errors list.
type JobError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Job is one queued unit of work. The database row is the source of
// truth; queue messages carry only the job id.
type Job struct {
	JobID          string          `db:"job_id"`
	Kind           string          `db:"kind"`
	Payload        json.RawMessage `db:"payload"`
	Status         string          `db:"status"`
	Attempt        int             `db:"attempt"`
	MaxAttempts    int             `db:"max_attempts"`
	PreviousErrors ErrorList       `db:"previous_errors"`
	Result         json.RawMessage `db:"result"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// ErrorList is stored as a jsonb array.
type ErrorList []JobError

// ResultMeta describes how a job result was produced. scraped_count is
// never allowed to exceed total_items.
type ResultMeta struct {
	FiltersApplied []string `json:"filters_applied"`
	AdapterVersion string   `json:"adapter_version"`
	ScrapedCount   int      `json:"scraped_count"`
	TotalItems     int      `json:"total_items"`
}

// JobResult is the persisted result payload of a completed job.
type JobResult struct {
	Items []Record   `json:"items"`
	Meta  ResultMeta `json:"meta"`
}

// Record is the normalized shape a vendor response is reduced to,
// independent of the provider's schema.
type Record struct {
	PropertyID    string   `json:"property_id"`
	Address       string   `json:"address"`
	Zip           string   `json:"zip"`
	Owner         string   `json:"owner,omitempty"`
	ValuationCent int64    `json:"valuation_cents,omitempty"`
	Score         float64  `json:"score,omitempty"`
	DistressFlags []string `json:"distress_flags,omitempty"`
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// JobMessage is the body published to the jobs queue.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
