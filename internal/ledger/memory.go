// Package ledger implements the token ledger the fund engine moves assets on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// ErrTxDone indicates use of a committed or rolled back transaction.
var ErrTxDone = errors.New("ledger transaction already closed")

type balanceKey struct {
	asset  domain.AssetID
	holder domain.Address
}

type allowanceKey struct {
	asset   domain.AssetID
	owner   domain.Address
	spender domain.Address
}

// Memory is an in-process TokenLedger. Transactions are serialized: Begin
// blocks until the previous transaction has committed or rolled back.
type Memory struct {
	txMu       sync.Mutex // held for the lifetime of a transaction
	mu         sync.RWMutex
	balances   map[balanceKey]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[balanceKey]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// Mint credits amount of asset to holder out of thin air.
func (m *Memory) Mint(asset domain.AssetID, holder domain.Address, amount decimal.Decimal) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{asset, holder}
	m.balances[k] = m.balances[k].Add(amount)
}

// Approve sets the amount spender may pull from owner.
func (m *Memory) Approve(asset domain.AssetID, owner, spender domain.Address, amount decimal.Decimal) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allowances[allowanceKey{asset, owner, spender}] = amount
}

// Allowance returns the amount spender may still pull from owner.
func (m *Memory) Allowance(asset domain.AssetID, owner, spender domain.Address) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.allowances[allowanceKey{asset, owner, spender}]
}

func (m *Memory) BalanceOf(_ context.Context, asset domain.AssetID, holder domain.Address) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.balances[balanceKey{asset, holder}], nil
}

func (m *Memory) Begin(ctx context.Context, holder domain.Address) (domain.LedgerTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.txMu.Lock()
	return &memoryTx{
		ledger:     m,
		holder:     holder,
		balances:   make(map[balanceKey]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}, nil
}

// memoryTx stages absolute balances and allowances; Commit copies them into
// the ledger in one step.
type memoryTx struct {
	ledger     *Memory
	holder     domain.Address
	balances   map[balanceKey]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
	done       bool
}

func (tx *memoryTx) balance(k balanceKey) decimal.Decimal {
	if b, ok := tx.balances[k]; ok {
		return b
	}
	tx.ledger.mu.RLock()
	defer tx.ledger.mu.RUnlock()
	return tx.ledger.balances[k]
}

func (tx *memoryTx) allowance(k allowanceKey) decimal.Decimal {
	if a, ok := tx.allowances[k]; ok {
		return a
	}
	tx.ledger.mu.RLock()
	defer tx.ledger.mu.RUnlock()
	return tx.ledger.allowances[k]
}

func (tx *memoryTx) move(asset domain.AssetID, from, to domain.Address, amount decimal.Decimal) error {
	src := balanceKey{asset, from}
	have := tx.balance(src)
	if have.LessThan(amount) {
		return fmt.Errorf("%s holds %s %s, needs %s: %w", from, have, asset, amount, domain.ErrTransferFailed)
	}
	dst := balanceKey{asset, to}
	tx.balances[src] = have.Sub(amount)
	tx.balances[dst] = tx.balance(dst).Add(amount)
	return nil
}

func (tx *memoryTx) TransferIn(_ context.Context, asset domain.AssetID, from domain.Address, amount decimal.Decimal) error {
	if tx.done {
		return ErrTxDone
	}
	if !domain.IsUint(amount) {
		return fmt.Errorf("transfer of %s: %w", amount, domain.ErrInvalidAmount)
	}
	k := allowanceKey{asset, from, tx.holder}
	allowed := tx.allowance(k)
	if allowed.LessThan(amount) {
		return fmt.Errorf("%s approved %s %s, needs %s: %w", from, allowed, asset, amount, domain.ErrInsufficientAllowance)
	}
	if err := tx.move(asset, from, tx.holder, amount); err != nil {
		return err
	}
	tx.allowances[k] = allowed.Sub(amount)
	return nil
}

func (tx *memoryTx) TransferOut(_ context.Context, asset domain.AssetID, to domain.Address, amount decimal.Decimal) error {
	if tx.done {
		return ErrTxDone
	}
	if !domain.IsUint(amount) {
		return fmt.Errorf("transfer of %s: %w", amount, domain.ErrInvalidAmount)
	}
	return tx.move(asset, tx.holder, to, amount)
}

func (tx *memoryTx) BalanceOf(_ context.Context, asset domain.AssetID, holder domain.Address) (decimal.Decimal, error) {
	if tx.done {
		return decimal.Zero, ErrTxDone
	}
	return tx.balance(balanceKey{asset, holder}), nil
}

func (tx *memoryTx) Commit(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.ledger.mu.Lock()
	for k, v := range tx.balances {
		tx.ledger.balances[k] = v
	}
	for k, v := range tx.allowances {
		tx.ledger.allowances[k] = v
	}
	tx.ledger.mu.Unlock()

	tx.close()
	return nil
}

func (tx *memoryTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.close()
	return nil
}

func (tx *memoryTx) close() {
	tx.done = true
	tx.balances = nil
	tx.allowances = nil
	tx.ledger.txMu.Unlock()
}
