package dto

import (
	"encoding/json"
	"time"

	"github.com/dealscout/pipeline/internal/domain"
)

type CreateSubscriptionRequest struct {
	TargetURL     string   `json:"target_url" binding:"required,url"`
	EventTypes    []string `json:"event_types" binding:"required,min=1"`
	SigningSecret string   `json:"signing_secret" binding:"required"`
}

type UpdateSubscriptionRequest struct {
	TargetURL  string   `json:"target_url" binding:"omitempty,url"`
	EventTypes []string `json:"event_types"`
	IsActive   *bool    `json:"is_active"`
}

type SubscriptionDTO struct {
	ID         string   `json:"id"`
	TargetURL  string   `json:"target_url"`
	EventTypes []string `json:"event_types"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// FromSubscription maps a subscription without exposing the secret.
func FromSubscription(sub *domain.WebhookSubscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		EventTypes: sub.EventTypes,
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  sub.UpdatedAt.Format(time.RFC3339),
	}
}

type ListFailuresRequest struct {
	EventType      string `form:"event_type"`
	SubscriptionID string `form:"subscription_id"`
	Limit          int    `form:"limit"`
}

type FailureDTO struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	IsResolved     bool            `json:"is_resolved"`
	ReplayedAt     string          `json:"replayed_at,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// FromFailure maps a dead-letter row onto the response shape.
func FromFailure(f *domain.WebhookDeliveryFailure) FailureDTO {
	out := FailureDTO{
		ID:             f.ID,
		SubscriptionID: f.SubscriptionID,
		EventType:      f.EventType,
		Payload:        f.Payload,
		Attempts:       f.Attempts,
		IsResolved:     f.IsResolved,
		CreatedAt:      f.CreatedAt.Format(time.RFC3339),
	}
	if f.ReplayedAt != nil {
		out.ReplayedAt = f.ReplayedAt.Format(time.RFC3339)
	}
	return out
}

type ReplayAllResponse struct {
	Enqueued int `json:"enqueued"`
}
