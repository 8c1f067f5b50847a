package fund

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// State is everything a fund owns apart from its token balances, which live
// on the ledger under the fund's holder account.
type State struct {
	TrackedAssets []domain.AssetID                  `json:"trackedAssets"`
	Shares        map[domain.Address]decimal.Decimal `json:"shares"`
	TotalShares   decimal.Decimal                    `json:"totalShares"`
	LastAccrual   time.Time                          `json:"lastAccrual"`
}

func newState(now time.Time) State {
	return State{
		TrackedAssets: []domain.AssetID{},
		Shares:        make(map[domain.Address]decimal.Decimal),
		TotalShares:   decimal.Zero,
		LastAccrual:   now,
	}
}

func (s State) clone() State {
	c := s
	c.TrackedAssets = slices.Clone(s.TrackedAssets)
	c.Shares = maps.Clone(s.Shares)
	if c.Shares == nil {
		c.Shares = make(map[domain.Address]decimal.Decimal)
	}
	return c
}

// Validate checks the share ledger invariants of a restored state.
func (s State) Validate() error {
	sum := decimal.Zero
	for holder, bal := range s.Shares {
		if !domain.IsUint(bal) {
			return fmt.Errorf("share balance of %s is %s: %w", holder, bal, domain.ErrInvalidInput)
		}
		sum = sum.Add(bal)
	}
	if !sum.Equal(s.TotalShares) {
		return fmt.Errorf("total shares %s differ from sum of balances %s: %w", s.TotalShares, sum, domain.ErrInvalidInput)
	}
	if len(lo.Uniq(s.TrackedAssets)) != len(s.TrackedAssets) {
		return fmt.Errorf("duplicate tracked assets: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (s *State) mint(to domain.Address, shares decimal.Decimal) {
	s.Shares[to] = s.Shares[to].Add(shares)
	s.TotalShares = s.TotalShares.Add(shares)
}

// burn assumes the caller checked the balance. A holder's entry stays in the
// ledger at zero.
func (s *State) burn(from domain.Address, shares decimal.Decimal) {
	s.Shares[from] = s.Shares[from].Sub(shares)
	s.TotalShares = s.TotalShares.Sub(shares)
}

func (s *State) tracks(asset domain.AssetID) bool {
	return slices.Contains(s.TrackedAssets, asset)
}

// track appends asset unless already present and reports whether it did.
func (s *State) track(asset domain.AssetID) bool {
	if s.tracks(asset) {
		return false
	}
	s.TrackedAssets = append(s.TrackedAssets, asset)
	return true
}
