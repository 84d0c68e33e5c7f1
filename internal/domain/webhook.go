package domain

import (
	"encoding/json"
	"time"
)

// Domain event types carried to webhook subscribers.
const (
	EventJobCompleted        = "job.completed"
	EventJobFailed           = "job.failed"
	EventEnrichmentCompleted = "enrichment.completed"
	EventMatchmakingComplete = "matchmaking.completed"
)

// Delivery outcome statuses recorded per attempt.
const (
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusFailed    = "FAILED"
)

// WebhookSubscription is a registered delivery target. Managed by the
// admin surface; the delivery worker only reads active rows.
type WebhookSubscription struct {
	ID            string     `db:"id"`
	TargetURL     string     `db:"target_url"`
	EventTypes    StringList `db:"event_types"`
	SigningSecret string     `db:"signing_secret"`
	IsActive      bool       `db:"is_active"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// StringList is stored as a jsonb array.
type StringList []string

// Wants reports whether the subscription asks for the event type.
func (s *WebhookSubscription) Wants(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// WebhookDeliveryLog is one append-only row per delivery outcome.
type WebhookDeliveryLog struct {
	ID             string    `db:"id"`
	SubscriptionID string    `db:"subscription_id"`
	EventType      string    `db:"event_type"`
	Status         string    `db:"status"`
	AttemptsMade   int       `db:"attempts_made"`
	DurationMs     int64     `db:"duration_ms"`
	CreatedAt      time.Time `db:"created_at"`
}

// WebhookDeliveryFailure is a dead-letter row, written once a delivery
// exhausts its attempt budget. It stays unresolved until a later
// delivery of the same logical event succeeds.
type WebhookDeliveryFailure struct {
	ID             string          `db:"id"`
	SubscriptionID string          `db:"subscription_id"`
	EventType      string          `db:"event_type"`
	Payload        json.RawMessage `db:"payload"`
	Attempts       int             `db:"attempts"`
	IsResolved     bool            `db:"is_resolved"`
	ReplayedAt     *time.Time      `db:"replayed_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

// DeliveryTask is the body published to the webhook delivery queue:
// one independent task per (event, subscription) pair. FailureID is set
// when the task is a replay of a dead-letter row.
type DeliveryTask struct {
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	EventID        string          `json:"event_id"`
	Payload        json.RawMessage `json:"payload"`
	FailureID      string          `json:"failure_id,omitempty"`
}
