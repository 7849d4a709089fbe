package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tng25/lino/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts one audit event. Missing IDs and timestamps are filled in.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal event data: %w", err)
	}

	const query = `
		INSERT INTO events (id, ts, mint, action, reason, data)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, query,
		ev.ID, ev.Ts, ev.Mint, ev.Action, ev.Reason, data,
	); err != nil {
		return fmt.Errorf("postgres: append event %s/%s: %w", ev.Mint, ev.Action, err)
	}
	return nil
}

// Recent returns the newest events for a mint, newest first, up to limit.
func (s *EventStore) Recent(ctx context.Context, mint string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, ts, mint, action, reason, data
		FROM events
		WHERE mint = $1
		ORDER BY ts DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, mint, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent events for %s: %w", mint, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.Ts, &ev.Mint, &ev.Action, &ev.Reason, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Data); err != nil {
				return nil, fmt.Errorf("postgres: decode event data: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// CollectSince returns all events recorded at or after since, oldest first.
// The archiver uses this to build periodic exports.
func (s *EventStore) CollectSince(ctx context.Context, since time.Time) ([]domain.Event, error) {
	const query = `
		SELECT id, ts, mint, action, reason, data
		FROM events
		WHERE ts >= $1
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: collect events since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.Ts, &ev.Mint, &ev.Action, &ev.Reason, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Data); err != nil {
				return nil, fmt.Errorf("postgres: decode event data: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}
