package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AssetID identifies a token type on the ledger.
type AssetID string

// Address identifies a ledger account: an investor, a fund holder or a fee sink.
type Address string

// RateAsset is the unit of account a price feed quotes its price in.
type RateAsset string

const (
	RateAssetETH RateAsset = "ETH"
	RateAssetUSD RateAsset = "USD"
)

// Feed scales, as published by the reference oracles.
const (
	ETHRateDecimals       = 18
	USDRateDecimals       = 8
	ReferenceRateDecimals = 8 // ETH priced in USD
)

// Valid reports whether r is one of the supported rate assets.
func (r RateAsset) Valid() bool {
	return r == RateAssetETH || r == RateAssetUSD
}

// Scale returns 10^decimals for prices expressed in r.
func (r RateAsset) Scale() decimal.Decimal {
	if r == RateAssetETH {
		return Pow10(ETHRateDecimals)
	}
	return Pow10(USDRateDecimals)
}

// maxAssetDecimals bounds the unit exponent of a registered asset.
const maxAssetDecimals = 36

// PrimitiveEntry binds an asset to the feed that prices it.
type PrimitiveEntry struct {
	Asset     AssetID   `json:"asset"`
	FeedRef   string    `json:"feedRef"`
	RateAsset RateAsset `json:"rateAsset"`
	Decimals  int32     `json:"decimals"`
}

// Unit returns one whole token expressed in the asset's smallest denomination.
func (e PrimitiveEntry) Unit() decimal.Decimal {
	return Pow10(e.Decimals)
}

// Validate checks that the entry can be registered.
func (e PrimitiveEntry) Validate() error {
	if e.Asset == "" {
		return fmt.Errorf("empty asset id: %w", ErrInvalidInput)
	}
	if e.FeedRef == "" {
		return fmt.Errorf("asset %s: empty feed reference: %w", e.Asset, ErrInvalidInput)
	}
	if !e.RateAsset.Valid() {
		return fmt.Errorf("asset %s: unsupported rate asset %q: %w", e.Asset, e.RateAsset, ErrInvalidInput)
	}
	if e.Decimals < 0 || e.Decimals > maxAssetDecimals {
		return fmt.Errorf("asset %s: decimals %d out of range: %w", e.Asset, e.Decimals, ErrInvalidInput)
	}
	return nil
}

// ValueItem is an amount of a single asset submitted for valuation.
type ValueItem struct {
	Asset  AssetID         `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is the value of a set of items expressed in QuoteAsset.
type Quote struct {
	Amount     decimal.Decimal `json:"amount"`
	QuoteAsset AssetID         `json:"quoteAsset"`
}

// Payout is an amount of one asset moved out of a fund.
type Payout struct {
	Asset  AssetID         `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}
