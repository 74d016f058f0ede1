package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"playerfeed/internal/domain"
)

// RecordEvent archives an event. Idempotent per event id, so a replayed
// message does not produce a duplicate row.
func (s *PostgresStore) RecordEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, event_type, player_id, occurred_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, event.EventID, event.EventType, event.PlayerID, event.OccurredAt, event.Data)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent returns an archived event by id, or (nil, nil) when unknown.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_type, player_id, occurred_at, data
		FROM events WHERE id = $1
	`, id).Scan(
		&event.EventID, &event.EventType, &event.PlayerID, &event.OccurredAt, &event.Data,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &event, nil
}

// ListEvents returns archived events, newest first, optionally filtered by type.
func (s *PostgresStore) ListEvents(ctx context.Context, eventType string, limit int) ([]domain.Event, error) {
	query := `SELECT id, event_type, player_id, occurred_at, data FROM events`
	args := []interface{}{}
	argIdx := 1

	if eventType != "" {
		query += fmt.Sprintf(" WHERE event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		err := rows.Scan(&e.EventID, &e.EventType, &e.PlayerID, &e.OccurredAt, &e.Data)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}
