package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot represents a stored fund statement.
type Snapshot struct {
	ID           int             `json:"id"`
	FundID       uuid.UUID       `json:"fundId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, fundID uuid.UUID, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, fundID uuid.UUID) (*Snapshot, error)
	GetNearestBefore(ctx context.Context, fundID uuid.UUID, date time.Time) (*Snapshot, error)
	List(ctx context.Context, fundID uuid.UUID, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, fundID uuid.UUID, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO fund_snapshots (fund_id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (fund_id, snapshot_date)
		 DO UPDATE SET data = $3::jsonb`,
		fundID, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, fundID uuid.UUID) (*Snapshot, error) {
	return r.one(ctx, "getting latest snapshot",
		`SELECT id, fund_id, snapshot_date, data, created_at
		 FROM fund_snapshots
		 WHERE fund_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, fundID)
}

// GetNearestBefore returns the latest snapshot taken on or before date.
func (r *PgRepository) GetNearestBefore(ctx context.Context, fundID uuid.UUID, date time.Time) (*Snapshot, error) {
	return r.one(ctx, "getting snapshot before date",
		`SELECT id, fund_id, snapshot_date, data, created_at
		 FROM fund_snapshots
		 WHERE fund_id = $1 AND snapshot_date <= $2
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, fundID, date)
}

func (r *PgRepository) one(ctx context.Context, what, sql string, args ...any) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&s.ID, &s.FundID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context, fundID uuid.UUID, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, fund_id, snapshot_date, data, created_at
		 FROM fund_snapshots
		 WHERE fund_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, fundID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.FundID, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}
