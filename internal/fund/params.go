// Package fund implements the pooled-investment accounting engine: share
// issuance, redemption in kind and fee accrual for a single fund.
package fund

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// DepositFeePolicy decides where the deposit fee ends up.
type DepositFeePolicy string

const (
	// DepositFeeForward sends the fee to the protocol fee sink.
	DepositFeeForward DepositFeePolicy = "forward"
	// DepositFeeRetain leaves the fee in the fund, accruing to existing holders.
	DepositFeeRetain DepositFeePolicy = "retain"
)

// Valid reports whether p is a known policy.
func (p DepositFeePolicy) Valid() bool {
	return p == DepositFeeForward || p == DepositFeeRetain
}

// Params are fixed when the fund is created.
type Params struct {
	Owner                 domain.Address   `json:"owner"`
	Holder                domain.Address   `json:"holder"`
	DenominationAsset     domain.AssetID   `json:"denominationAsset"`
	DenominationDecimals  int32            `json:"denominationDecimals"`
	DepositFeeBps         int64            `json:"depositFeeBps"`
	OwnerFeeBpsPerYear    int64            `json:"ownerFeeBpsPerYear"`
	ProtocolFeeBpsPerYear int64            `json:"protocolFeeBpsPerYear"`
	ProtocolFeeSink       domain.Address   `json:"protocolFeeSink"`
	DepositFeePolicy      DepositFeePolicy `json:"depositFeePolicy"`
}

// WithDefaults fills optional fields.
func (p Params) WithDefaults() Params {
	if p.DepositFeePolicy == "" {
		p.DepositFeePolicy = DepositFeeForward
	}
	return p
}

// Validate checks that p describes a usable fund.
func (p Params) Validate() error {
	switch {
	case p.Owner == "":
		return fmt.Errorf("owner is required: %w", domain.ErrInvalidInput)
	case p.Holder == "":
		return fmt.Errorf("holder is required: %w", domain.ErrInvalidInput)
	case p.ProtocolFeeSink == "":
		return fmt.Errorf("protocol fee sink is required: %w", domain.ErrInvalidInput)
	case p.Holder == p.ProtocolFeeSink || p.Holder == p.Owner:
		return fmt.Errorf("holder %s must be a dedicated account: %w", p.Holder, domain.ErrInvalidInput)
	case p.DenominationAsset == "":
		return fmt.Errorf("denomination asset is required: %w", domain.ErrInvalidInput)
	case p.DenominationDecimals < 0 || p.DenominationDecimals > domain.ShareDecimals:
		return fmt.Errorf("denomination decimals %d out of range [0, %d]: %w",
			p.DenominationDecimals, domain.ShareDecimals, domain.ErrInvalidInput)
	case p.DepositFeeBps < 0 || p.DepositFeeBps > domain.BasisPoints:
		return fmt.Errorf("deposit fee %d bps out of range: %w", p.DepositFeeBps, domain.ErrInvalidInput)
	case p.OwnerFeeBpsPerYear < 0 || p.OwnerFeeBpsPerYear > domain.BasisPoints:
		return fmt.Errorf("owner fee %d bps out of range: %w", p.OwnerFeeBpsPerYear, domain.ErrInvalidInput)
	case p.ProtocolFeeBpsPerYear < 0 || p.ProtocolFeeBpsPerYear > domain.BasisPoints:
		return fmt.Errorf("protocol fee %d bps out of range: %w", p.ProtocolFeeBpsPerYear, domain.ErrInvalidInput)
	case !p.DepositFeePolicy.Valid():
		return fmt.Errorf("deposit fee policy %q: %w", p.DepositFeePolicy, domain.ErrInvalidInput)
	}
	return nil
}

// ShareScale converts one denomination unit into share units on bootstrap,
// so one whole share starts out worth one whole denomination token.
func (p Params) ShareScale() decimal.Decimal {
	return domain.Pow10(domain.ShareDecimals - p.DenominationDecimals)
}
