package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrRoundNotFound indicates a feed with no stored round.
var ErrRoundNotFound = errors.New("feed round not found")

// StoredRound is an external price round stored in the database.
type StoredRound struct {
	FeedRef   string          `json:"feedRef"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RoundRepository defines persistent storage for feed rounds.
type RoundRepository interface {
	SaveRound(ctx context.Context, feedRef string, price decimal.Decimal, updatedAt time.Time) error
	GetRound(ctx context.Context, feedRef string) (StoredRound, error)
	GetAllRounds(ctx context.Context) ([]StoredRound, error)
}

// PgRoundRepository implements RoundRepository with PostgreSQL.
type PgRoundRepository struct {
	pool *pgxpool.Pool
}

// NewPgRoundRepository creates a new PostgreSQL round repository.
func NewPgRoundRepository(pool *pgxpool.Pool) *PgRoundRepository {
	return &PgRoundRepository{pool: pool}
}

// SaveRound upserts a round. An older round never replaces a newer one.
func (r *PgRoundRepository) SaveRound(ctx context.Context, feedRef string, price decimal.Decimal, updatedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feed_rounds (feed_ref, price, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (feed_ref) DO UPDATE SET price = $2, updated_at = $3
		 WHERE feed_rounds.updated_at <= $3`,
		feedRef, price, updatedAt)
	if err != nil {
		return fmt.Errorf("saving round for %s: %w", feedRef, err)
	}
	return nil
}

func (r *PgRoundRepository) GetRound(ctx context.Context, feedRef string) (StoredRound, error) {
	var q StoredRound
	err := r.pool.QueryRow(ctx,
		`SELECT feed_ref, price, updated_at FROM feed_rounds WHERE feed_ref = $1`,
		feedRef).Scan(&q.FeedRef, &q.Price, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredRound{}, fmt.Errorf("feed %s: %w", feedRef, ErrRoundNotFound)
		}
		return StoredRound{}, fmt.Errorf("getting round for %s: %w", feedRef, err)
	}
	return q, nil
}

func (r *PgRoundRepository) GetAllRounds(ctx context.Context) ([]StoredRound, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT feed_ref, price, updated_at FROM feed_rounds ORDER BY feed_ref`)
	if err != nil {
		return nil, fmt.Errorf("getting all rounds: %w", err)
	}
	defer rows.Close()

	var rounds []StoredRound
	for rows.Next() {
		var q StoredRound
		if err := rows.Scan(&q.FeedRef, &q.Price, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		rounds = append(rounds, q)
	}
	return rounds, rows.Err()
}
