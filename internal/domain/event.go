package domain

import (
	"encoding/json"
	"time"
)

// Event is an in-process domain event. Payload carries a stable event
// id so webhook receivers can de-duplicate at-least-once deliveries.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Data      json.RawMessage `json:"data"`
	EmittedAt time.Time       `json:"emitted_at"`
}
