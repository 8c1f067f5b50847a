// Package registry creates funds and keeps them by id.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/fund"
)

// Registry owns every fund of the process.
type Registry struct {
	ledger domain.TokenLedger
	valuer fund.Valuer
	repo   Repository
	opts   []fund.Option

	mu    sync.RWMutex
	funds map[uuid.UUID]*fund.Fund
	order []uuid.UUID
}

// New creates a Registry. repo may be nil, in which case funds live only in
// memory.
func New(ledger domain.TokenLedger, valuer fund.Valuer, repo Repository, opts ...fund.Option) *Registry {
	if ledger == nil {
		panic("registry.New: ledger is nil")
	}
	if valuer == nil {
		panic("registry.New: valuer is nil")
	}
	return &Registry{
		ledger: ledger,
		valuer: valuer,
		repo:   repo,
		opts:   opts,
		funds:  make(map[uuid.UUID]*fund.Fund),
	}
}

// Create validates params, persists a new empty fund and registers it.
func (r *Registry) Create(ctx context.Context, params fund.Params) (*fund.Fund, error) {
	if !r.valuer.IsSupportedAsset(params.DenominationAsset) {
		return nil, fmt.Errorf("denomination asset %s: %w", params.DenominationAsset, domain.ErrUnknownAsset)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holderTaken(params.Holder) {
		return nil, fmt.Errorf("holder %s already backs a fund: %w", params.Holder, domain.ErrInvalidInput)
	}

	f, err := fund.New(uuid.New(), params, r.ledger, r.valuer, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("creating fund: %w", err)
	}
	if r.repo != nil {
		if err := r.repo.Insert(ctx, f.ID(), f.Params(), f.Snapshot()); err != nil {
			return nil, err
		}
	}

	r.funds[f.ID()] = f
	r.order = append(r.order, f.ID())
	slog.Info("fund created", "id", f.ID(), "holder", params.Holder, "denomination", params.DenominationAsset)
	return f, nil
}

// Load restores every persisted fund. Funds already registered are kept.
func (r *Registry) Load(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	records, err := r.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		if _, ok := r.funds[rec.ID]; ok {
			continue
		}
		f, err := fund.Restore(rec.ID, rec.Params, rec.State, r.ledger, r.valuer, r.opts...)
		if err != nil {
			return loaded, err
		}
		r.funds[f.ID()] = f
		r.order = append(r.order, f.ID())
		loaded++
	}
	return loaded, nil
}

// Get returns the fund with the given id.
func (r *Registry) Get(id uuid.UUID) (*fund.Fund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funds[id]
	if !ok {
		return nil, fmt.Errorf("fund %s: %w", id, domain.ErrFundNotFound)
	}
	return f, nil
}

// List returns all funds in creation order.
func (r *Registry) List() []*fund.Fund {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(id uuid.UUID, _ int) *fund.Fund {
		return r.funds[id]
	})
}

// UsesAsset reports whether any fund is denominated in asset or tracks it.
func (r *Registry) UsesAsset(asset domain.AssetID) bool {
	return lo.SomeBy(r.List(), func(f *fund.Fund) bool {
		return f.Params().DenominationAsset == asset || slices.Contains(f.Snapshot().TrackedAssets, asset)
	})
}

func (r *Registry) holderTaken(holder domain.Address) bool {
	return slices.ContainsFunc(r.order, func(id uuid.UUID) bool {
		return r.funds[id].Params().Holder == holder
	})
}
