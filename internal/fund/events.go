package fund

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// EventKind names a committed state change.
type EventKind string

const (
	KindDepositRecorded    EventKind = "deposit_recorded"
	KindRedemptionRecorded EventKind = "redemption_recorded"
	KindFeesAccrued        EventKind = "fees_accrued"
	KindTrackedAssetsAdded EventKind = "tracked_assets_added"
)

// Event is published once the operation that produced it has committed.
type Event struct {
	ID      uuid.UUID `json:"id"`
	FundID  uuid.UUID `json:"fundId"`
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// DepositRecorded is the payload of KindDepositRecorded.
type DepositRecorded struct {
	Investor     domain.Address  `json:"investor"`
	Amount       decimal.Decimal `json:"amount"`
	DepositFee   decimal.Decimal `json:"depositFee"`
	SharesMinted decimal.Decimal `json:"sharesMinted"`
}

// RedemptionRecorded is the payload of KindRedemptionRecorded.
type RedemptionRecorded struct {
	Investor domain.Address  `json:"investor"`
	Shares   decimal.Decimal `json:"shares"`
	Payouts  []domain.Payout `json:"payouts"`
}

// FeesAccrued is the payload of KindFeesAccrued.
type FeesAccrued struct {
	ElapsedSeconds int64           `json:"elapsedSeconds"`
	OwnerFeeShares decimal.Decimal `json:"ownerFeeShares"`
	ProtocolFees   []domain.Payout `json:"protocolFees"`
}

// TrackedAssetsAdded is the payload of KindTrackedAssetsAdded.
type TrackedAssetsAdded struct {
	Assets []domain.AssetID `json:"assets"`
}

// EventSink receives the events of committed operations.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, events []Event) error {
	for _, e := range events {
		slog.Info("fund event", "fund", e.FundID, "kind", e.Kind, "id", e.ID, "payload", e.Payload)
	}
	return nil
}

// MultiSink publishes to every sink in turn and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, events []Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
