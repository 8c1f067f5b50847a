package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShareHolding is one investor's position in a fund.
type ShareHolding struct {
	Holder Address         `json:"holder"`
	Shares decimal.Decimal `json:"shares"`
}

// Statement is a point-in-time report of a fund, stored as a snapshot and
// exported to spreadsheets.
type Statement struct {
	FundID               uuid.UUID       `json:"fundId"`
	GeneratedAt          time.Time       `json:"generatedAt"`
	DenominationAsset    AssetID         `json:"denominationAsset"`
	DenominationDecimals int32           `json:"denominationDecimals"`
	TotalValue           decimal.Decimal `json:"totalValue"`
	SharePrice           decimal.Decimal `json:"sharePrice"`
	TotalShares          decimal.Decimal `json:"totalShares"`
	LastAccrual          time.Time       `json:"lastAccrual"`
	Holdings             []ValueItem     `json:"holdings"`
	Holders              []ShareHolding  `json:"holders"`
}
