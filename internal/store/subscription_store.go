package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"playerfeed/internal/domain"
)

const subscriptionColumns = "id, url, event_types, player_id, secret, rate_limit_per_second, enabled, created_at"

// CreateSubscription registers a new webhook subscription. A secret is
// generated when the request does not supply one.
func (s *PostgresStore) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	secret := req.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generating secret: %w", err)
		}
		secret = generated
	}

	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, url, event_types, player_id, secret, rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subscriptionColumns,
		uuid.NewString(), req.URL, req.EventTypes, req.PlayerID, secret, req.RateLimitPerSecond,
	).Scan(
		&sub.ID, &sub.URL, &sub.EventTypes, &sub.PlayerID,
		&sub.Secret, &sub.RateLimitPerSecond, &sub.Enabled, &sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return &sub, nil
}

// GetSubscription returns a subscription by id, or (nil, nil) when unknown.
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.URL, &sub.EventTypes, &sub.PlayerID,
		&sub.Secret, &sub.RateLimitPerSecond, &sub.Enabled, &sub.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns every subscription, enabled or not.
func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListEnabledMatching returns all enabled subscriptions whose event_types
// set contains eventType. No ordering contract.
func (s *PostgresStore) ListEnabledMatching(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE enabled = true AND $1 = ANY(event_types)
	`, eventType)
	if err != nil {
		return nil, fmt.Errorf("querying matching subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// DisableSubscription logically deletes a subscription. Returns false when
// the id is unknown or the subscription is already disabled.
func (s *PostgresStore) DisableSubscription(ctx context.Context, id string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET enabled = false
		WHERE id = $1 AND enabled = true
	`, id)
	if err != nil {
		return false, fmt.Errorf("disabling subscription: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func scanSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.URL, &sub.EventTypes, &sub.PlayerID,
			&sub.Secret, &sub.RateLimitPerSecond, &sub.Enabled, &sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}
	return subs, nil
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}
