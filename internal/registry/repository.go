package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/hexa/internal/fund"
)

// Record is a persisted fund.
type Record struct {
	ID        uuid.UUID
	Params    fund.Params
	State     fund.State
	CreatedAt time.Time
}

// Repository defines persistent storage for funds. State changes after
// creation are written by the ledger transaction of each operation.
type Repository interface {
	Insert(ctx context.Context, id uuid.UUID, params fund.Params, state fund.State) error
	List(ctx context.Context) ([]Record, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL fund repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, id uuid.UUID, params fund.Params, state fund.State) error {
	p, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding fund params: %w", err)
	}
	s, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding fund state: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO funds (id, holder, params, state)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb)`,
		id, string(params.Holder), p, s)
	if err != nil {
		return fmt.Errorf("saving fund %s: %w", id, err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, params, state, created_at FROM funds ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing funds: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var params, state []byte
		if err := rows.Scan(&rec.ID, &params, &state, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fund: %w", err)
		}
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("decoding params of fund %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(state, &rec.State); err != nil {
			return nil, fmt.Errorf("decoding state of fund %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
