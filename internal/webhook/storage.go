package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store persists subscriptions, delivery logs, and dead letters. Both
// services share it: the worker writes logs/failures, the API reads
// and replays them.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store over the shared database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// ActiveSubscriptions returns active subscriptions wanting eventType.
// Matching on event_types happens in-process; subscription counts are
// small and the rows are already narrowed to is_active.
func (s *Store) ActiveSubscriptions(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	var subs []domain.WebhookSubscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, target_url, event_types, signing_secret, is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("select active subscriptions: %w", err)
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.Wants(eventType) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// GetSubscription returns one subscription, active or not. Replay uses
// the current configuration, so deactivated rows still resolve.
func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	err := s.db.GetContext(ctx, &sub, `
		SELECT id, target_url, event_types, signing_secret, is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// CreateSubscription inserts a new subscription row.
func (s *Store) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions
			(id, target_url, event_types, signing_secret, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.TargetURL, sub.EventTypes, sub.SigningSecret, sub.IsActive,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// UpdateSubscription rewrites target, event set, and active flag.
func (s *Store) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET target_url = $1, event_types = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4`,
		sub.TargetURL, sub.EventTypes, sub.IsActive, sub.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// DeactivateSubscription stops new deliveries but keeps history.
func (s *Store) DeactivateSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// AppendLog writes one append-only delivery outcome row.
func (s *Store) AppendLog(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_delivery_logs
			(id, subscription_id, event_type, status, attempts_made, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.SubscriptionID, log.EventType, log.Status,
		log.AttemptsMade, log.DurationMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// RecordFailure writes the dead-letter row for an exhausted delivery.
func (s *Store) RecordFailure(ctx context.Context, f *domain.WebhookDeliveryFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_delivery_failures
			(id, subscription_id, event_type, payload, attempts, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		f.ID, f.SubscriptionID, f.EventType, []byte(f.Payload), f.Attempts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

// GetFailure loads one dead-letter row.
func (s *Store) GetFailure(ctx context.Context, id string) (*domain.WebhookDeliveryFailure, error) {
	var f domain.WebhookDeliveryFailure
	err := s.db.GetContext(ctx, &f, `
		SELECT id, subscription_id, event_type, payload, attempts, is_resolved, replayed_at, created_at
		FROM webhook_delivery_failures
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFailureNotFound
		}
		return nil, fmt.Errorf("get delivery failure: %w", err)
	}
	return &f, nil
}

// FailureFilter narrows unresolved dead-letter queries.
type FailureFilter struct {
	EventType      string
	SubscriptionID string
	Limit          int
}

// UnresolvedFailures lists unresolved dead letters matching the filter.
func (s *Store) UnresolvedFailures(ctx context.Context, filter FailureFilter) ([]domain.WebhookDeliveryFailure, error) {
	query := `
		SELECT id, subscription_id, event_type, payload, attempts, is_resolved, replayed_at, created_at
		FROM webhook_delivery_failures
		WHERE is_resolved = FALSE`
	args := []interface{}{}
	argIdx := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.SubscriptionID != "" {
		query += fmt.Sprintf(" AND subscription_id = $%d", argIdx)
		args = append(args, filter.SubscriptionID)
		argIdx++
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	var failures []domain.WebhookDeliveryFailure
	if err := s.db.SelectContext(ctx, &failures, query, args...); err != nil {
		return nil, fmt.Errorf("list unresolved failures: %w", err)
	}
	return failures, nil
}

// ResolveFailure marks a dead letter resolved after a later delivery
// of the same logical event succeeded. The row is kept for audit.
func (s *Store) ResolveFailure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_delivery_failures
		SET is_resolved = TRUE, replayed_at = NOW()
		WHERE id = $1 AND is_resolved = FALSE`, id)
	if err != nil {
		return fmt.Errorf("resolve delivery failure: %w", err)
	}
	return nil
}
