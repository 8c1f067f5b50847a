package price

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/hexa/internal/domain"
)

// PrimitiveRepository defines persistent storage for registered primitives.
type PrimitiveRepository interface {
	SavePrimitives(ctx context.Context, entries []domain.PrimitiveEntry) error
	DeletePrimitives(ctx context.Context, assets []domain.AssetID) error
	ListPrimitives(ctx context.Context) ([]domain.PrimitiveEntry, error)
}

// PgPrimitiveRepository implements PrimitiveRepository with PostgreSQL.
type PgPrimitiveRepository struct {
	pool *pgxpool.Pool
}

// NewPgPrimitiveRepository creates a new PostgreSQL primitive repository.
func NewPgPrimitiveRepository(pool *pgxpool.Pool) *PgPrimitiveRepository {
	return &PgPrimitiveRepository{pool: pool}
}

func (r *PgPrimitiveRepository) SavePrimitives(ctx context.Context, entries []domain.PrimitiveEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO primitives (asset, feed_ref, rate_asset, decimals, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (asset) DO UPDATE
			 SET feed_ref = $2, rate_asset = $3, decimals = $4, updated_at = NOW()`,
			string(e.Asset), e.FeedRef, string(e.RateAsset), e.Decimals)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving primitives: %w", err)
	}
	return nil
}

func (r *PgPrimitiveRepository) DeletePrimitives(ctx context.Context, assets []domain.AssetID) error {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = string(a)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM primitives WHERE asset = ANY($1)`, ids); err != nil {
		return fmt.Errorf("deleting primitives: %w", err)
	}
	return nil
}

func (r *PgPrimitiveRepository) ListPrimitives(ctx context.Context) ([]domain.PrimitiveEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT asset, feed_ref, rate_asset, decimals FROM primitives ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("listing primitives: %w", err)
	}
	defer rows.Close()

	var entries []domain.PrimitiveEntry
	for rows.Next() {
		var e domain.PrimitiveEntry
		var asset, rate string
		if err := rows.Scan(&asset, &e.FeedRef, &rate, &e.Decimals); err != nil {
			return nil, fmt.Errorf("scanning primitive: %w", err)
		}
		e.Asset = domain.AssetID(asset)
		e.RateAsset = domain.RateAsset(rate)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
