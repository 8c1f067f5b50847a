package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// Postgres is a TokenLedger backed by the token_balances and
// token_allowances tables. Rows touched by a transaction are locked until it
// ends.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL token ledger.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Address) (decimal.Decimal, error) {
	return balanceOf(ctx, p.pool, asset, holder, false)
}

func (p *Postgres) Begin(ctx context.Context, holder domain.Address) (domain.LedgerTx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger transaction: %w", err)
	}
	return &postgresTx{tx: tx, holder: holder}, nil
}

// Mint credits amount of asset to holder.
func (p *Postgres) Mint(ctx context.Context, asset domain.AssetID, holder domain.Address, amount decimal.Decimal) error {
	if err := credit(ctx, p.pool, asset, holder, amount); err != nil {
		return fmt.Errorf("minting %s %s to %s: %w", amount, asset, holder, err)
	}
	return nil
}

// Approve sets the amount spender may pull from owner.
func (p *Postgres) Approve(ctx context.Context, asset domain.AssetID, owner, spender domain.Address, amount decimal.Decimal) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO token_allowances (asset, owner, spender, amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset, owner, spender) DO UPDATE SET amount = $4`,
		asset, owner, spender, amount)
	if err != nil {
		return fmt.Errorf("approving %s %s for %s: %w", amount, asset, spender, err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func balanceOf(ctx context.Context, q querier, asset domain.AssetID, holder domain.Address, lock bool) (decimal.Decimal, error) {
	sql := `SELECT amount FROM token_balances WHERE asset = $1 AND holder = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var amount decimal.Decimal
	err := q.QueryRow(ctx, sql, asset, holder).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance of %s in %s: %w", holder, asset, err)
	}
	return amount, nil
}

func credit(ctx context.Context, q querier, asset domain.AssetID, holder domain.Address, amount decimal.Decimal) error {
	_, err := q.Exec(ctx,
		`INSERT INTO token_balances (asset, holder, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (asset, holder) DO UPDATE SET amount = token_balances.amount + $3`,
		asset, holder, amount)
	return err
}

type postgresTx struct {
	tx     pgx.Tx
	holder domain.Address
}

func (t *postgresTx) TransferIn(ctx context.Context, asset domain.AssetID, from domain.Address, amount decimal.Decimal) error {
	if !domain.IsUint(amount) {
		return fmt.Errorf("transfer of %s: %w", amount, domain.ErrInvalidAmount)
	}

	var allowed decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT amount FROM token_allowances
		 WHERE asset = $1 AND owner = $2 AND spender = $3
		 FOR UPDATE`,
		asset, from, t.holder).Scan(&allowed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reading allowance: %w", err)
	}
	if allowed.LessThan(amount) {
		return fmt.Errorf("%s approved %s %s, needs %s: %w", from, allowed, asset, amount, domain.ErrInsufficientAllowance)
	}

	if err := t.move(ctx, asset, from, t.holder, amount); err != nil {
		return err
	}

	if _, err := t.tx.Exec(ctx,
		`UPDATE token_allowances SET amount = amount - $4
		 WHERE asset = $1 AND owner = $2 AND spender = $3`,
		asset, from, t.holder, amount); err != nil {
		return fmt.Errorf("spending allowance: %w", err)
	}
	return nil
}

func (t *postgresTx) TransferOut(ctx context.Context, asset domain.AssetID, to domain.Address, amount decimal.Decimal) error {
	if !domain.IsUint(amount) {
		return fmt.Errorf("transfer of %s: %w", amount, domain.ErrInvalidAmount)
	}
	return t.move(ctx, asset, t.holder, to, amount)
}

func (t *postgresTx) move(ctx context.Context, asset domain.AssetID, from, to domain.Address, amount decimal.Decimal) error {
	have, err := balanceOf(ctx, t.tx, asset, from, true)
	if err != nil {
		return err
	}
	if have.LessThan(amount) {
		return fmt.Errorf("%s holds %s %s, needs %s: %w", from, have, asset, amount, domain.ErrTransferFailed)
	}
	if _, err := t.tx.Exec(ctx,
		`UPDATE token_balances SET amount = amount - $3 WHERE asset = $1 AND holder = $2`,
		asset, from, amount); err != nil {
		return fmt.Errorf("debiting %s: %w", from, err)
	}
	if err := credit(ctx, t.tx, asset, to, amount); err != nil {
		return fmt.Errorf("crediting %s: %w", to, err)
	}
	return nil
}

func (t *postgresTx) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Address) (decimal.Decimal, error) {
	return balanceOf(ctx, t.tx, asset, holder, false)
}

// WriteFundState persists the fund state inside the ledger transaction.
func (t *postgresTx) WriteFundState(ctx context.Context, fundID uuid.UUID, state []byte) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE funds SET state = $2::jsonb, updated_at = NOW() WHERE id = $1`,
		fundID, state)
	if err != nil {
		return fmt.Errorf("writing fund state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("writing fund state for %s: %w", fundID, domain.ErrFundNotFound)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back ledger transaction: %w", err)
	}
	return nil
}
