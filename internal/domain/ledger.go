package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenLedger holds token balances for every account.
// Transfers only happen inside a transaction bound to a single holder.
type TokenLedger interface {
	// Begin opens a transaction on behalf of holder.
	Begin(ctx context.Context, holder Address) (LedgerTx, error)

	// BalanceOf returns the committed balance of holder in asset.
	BalanceOf(ctx context.Context, asset AssetID, holder Address) (decimal.Decimal, error)
}

// LedgerTx stages transfers that become visible only on Commit.
// Rollback after Commit is a no-op, so it is safe to defer.
type LedgerTx interface {
	// TransferIn pulls amount of asset from an approved account into the holder.
	TransferIn(ctx context.Context, asset AssetID, from Address, amount decimal.Decimal) error

	// TransferOut moves amount of asset from the holder to another account.
	TransferOut(ctx context.Context, asset AssetID, to Address, amount decimal.Decimal) error

	// BalanceOf returns the balance including transfers staged in this transaction.
	BalanceOf(ctx context.Context, asset AssetID, holder Address) (decimal.Decimal, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StateWriter is implemented by ledger transactions that can persist a fund's
// state atomically with the transfers they stage.
type StateWriter interface {
	WriteFundState(ctx context.Context, fundID uuid.UUID, state []byte) error
}
