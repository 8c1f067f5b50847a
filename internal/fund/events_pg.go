package fund

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgEventSink appends events to the fund_events table.
type PgEventSink struct {
	pool *pgxpool.Pool
}

// NewPgEventSink creates a PostgreSQL event sink.
func NewPgEventSink(pool *pgxpool.Pool) *PgEventSink {
	return &PgEventSink{pool: pool}
}

func (s *PgEventSink) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encoding %s event: %w", e.Kind, err)
		}
		batch.Queue(
			`INSERT INTO fund_events (id, fund_id, kind, payload, created_at)
			 VALUES ($1, $2, $3, $4::jsonb, $5)
			 ON CONFLICT (id) DO NOTHING`,
			e.ID, e.FundID, string(e.Kind), payload, e.At)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving fund events: %w", err)
	}
	return nil
}

// StoredEvent is an event as read back from fund_events.
type StoredEvent struct {
	ID      uuid.UUID       `json:"id"`
	FundID  uuid.UUID       `json:"fundId"`
	Kind    EventKind       `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// List returns the latest events of a fund, newest first.
func (s *PgEventSink) List(ctx context.Context, fundID uuid.UUID, limit int) ([]StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fund_id, kind, created_at, payload
		 FROM fund_events
		 WHERE fund_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, fundID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing fund events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.FundID, &kind, &e.At, &e.Payload); err != nil {
			return nil, fmt.Errorf("scanning fund event: %w", err)
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
