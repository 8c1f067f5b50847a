// Package snapshot builds daily fund statements and stores them.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/fund"
)

// FundView is the read side of a fund a statement is built from.
type FundView interface {
	ID() uuid.UUID
	Params() fund.Params
	Snapshot() fund.State
	Holdings(ctx context.Context) ([]domain.ValueItem, error)
	TotalValue(ctx context.Context) (domain.Quote, error)
	SharePrice(ctx context.Context) (decimal.Decimal, error)
}

// FundLister lists the funds to report on.
type FundLister interface {
	List() []*fund.Fund
}

// Service manages statement generation and retrieval.
type Service struct {
	funds FundLister
	repo  Repository
}

// NewService creates a new snapshot Service. repo may be nil, in which case
// statements are built but not stored.
func NewService(funds FundLister, repo Repository) *Service {
	return &Service{funds: funds, repo: repo}
}

// Generate builds a statement of every fund and stores it under date.
// A fund that cannot be valued is skipped with a warning.
func (s *Service) Generate(ctx context.Context, date time.Time) ([]domain.Statement, error) {
	var statements []domain.Statement
	for _, f := range s.funds.List() {
		st, err := BuildStatement(ctx, f, time.Now().UTC())
		if err != nil {
			slog.Warn("skipping fund statement", "fund", f.ID(), "error", err)
			continue
		}

		if s.repo != nil {
			data, err := json.Marshal(st)
			if err != nil {
				return nil, fmt.Errorf("marshaling statement: %w", err)
			}
			if err := s.repo.Save(ctx, st.FundID, date, data); err != nil {
				return nil, fmt.Errorf("saving snapshot of fund %s: %w", st.FundID, err)
			}
		}
		statements = append(statements, st)
	}
	return statements, nil
}

// BuildStatement captures the current position of f.
func BuildStatement(ctx context.Context, f FundView, at time.Time) (domain.Statement, error) {
	params := f.Params()
	state := f.Snapshot()

	holdings, err := f.Holdings(ctx)
	if err != nil {
		return domain.Statement{}, fmt.Errorf("reading holdings: %w", err)
	}
	value, err := f.TotalValue(ctx)
	if err != nil {
		return domain.Statement{}, err
	}
	sharePrice, err := f.SharePrice(ctx)
	if err != nil {
		return domain.Statement{}, err
	}

	holders := lo.MapToSlice(state.Shares, func(h domain.Address, shares decimal.Decimal) domain.ShareHolding {
		return domain.ShareHolding{Holder: h, Shares: shares}
	})
	slices.SortFunc(holders, func(a, b domain.ShareHolding) int {
		if c := b.Shares.Cmp(a.Shares); c != 0 {
			return c
		}
		return strings.Compare(string(a.Holder), string(b.Holder))
	})

	return domain.Statement{
		FundID:               f.ID(),
		GeneratedAt:          at,
		DenominationAsset:    params.DenominationAsset,
		DenominationDecimals: params.DenominationDecimals,
		TotalValue:           value.Amount,
		SharePrice:           sharePrice,
		TotalShares:          state.TotalShares,
		LastAccrual:          state.LastAccrual,
		Holdings:             holdings,
		Holders:              holders,
	}, nil
}

// GetLatest retrieves the most recent snapshot of a fund.
func (s *Service) GetLatest(ctx context.Context, fundID uuid.UUID) (*Snapshot, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	return s.repo.GetLatest(ctx, fundID)
}

// List retrieves recent snapshots of a fund.
func (s *Service) List(ctx context.Context, fundID uuid.UUID, limit int) ([]Snapshot, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, fundID, limit)
}
