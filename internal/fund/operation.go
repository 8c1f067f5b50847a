package fund

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/metrics"
)

const (
	opInvest    = "invest"
	opRedeem    = "redeem"
	opAddAssets = "add_tracked_assets"
	opAccrue    = "accrue"
)

// op is one state-changing call in flight. Changes are staged on a copy of
// the fund state and on a ledger transaction; nothing is visible until commit.
type op struct {
	fund   *Fund
	tx     domain.LedgerTx
	state  State
	now    time.Time
	events []Event
}

// apply runs the accrue-then-act protocol under the fund lock.
func (f *Fund) apply(ctx context.Context, name string, accrue bool, act func(*op) error) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	defer func() {
		if err != nil {
			metrics.RecordOperationError(name, err)
		}
	}()

	tx, err := f.ledger.Begin(ctx, f.params.Holder)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("rolling back fund operation", "fund", f.id, "op", name, "error", rbErr)
		}
	}()

	o := &op{fund: f, tx: tx, state: f.state.clone(), now: f.clock()}
	if accrue {
		if err := o.accrue(ctx); err != nil {
			return fmt.Errorf("%s: accruing fees: %w", name, err)
		}
	}
	if err := act(o); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := o.commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	f.state = o.state
	f.publish(ctx, o.events)
	return nil
}

func (o *op) emit(kind EventKind, payload any) {
	o.events = append(o.events, Event{
		ID:      uuid.New(),
		FundID:  o.fund.id,
		Kind:    kind,
		At:      o.now,
		Payload: payload,
	})
}

func (o *op) commit(ctx context.Context) error {
	if w, ok := o.tx.(domain.StateWriter); ok {
		data, err := json.Marshal(o.state)
		if err != nil {
			return fmt.Errorf("encoding fund state: %w", err)
		}
		if err := w.WriteFundState(ctx, o.fund.id, data); err != nil {
			return err
		}
	}
	return o.tx.Commit(ctx)
}

// publish hands committed events to the sink. The operation has already
// committed, so a failing sink is only logged.
func (f *Fund) publish(ctx context.Context, events []Event) {
	for _, e := range events {
		metrics.RecordFundEvent(string(e.Kind))
	}
	if len(events) == 0 || f.sink == nil {
		return
	}
	if err := f.sink.Publish(ctx, events); err != nil {
		slog.Error("publishing fund events", "fund", f.id, "count", len(events), "error", err)
	}
}

// accrue mints the owner fee and skims the protocol fee for the time since
// the last accrual. A clock at or before LastAccrual changes nothing.
func (o *op) accrue(ctx context.Context) error {
	elapsed := int64(o.now.Sub(o.state.LastAccrual) / time.Second)
	if elapsed <= 0 {
		return nil
	}
	p := o.fund.params

	ownerFee := domain.AnnualFee(o.state.TotalShares, p.OwnerFeeBpsPerYear, elapsed)

	var protocolFees []domain.Payout
	for _, asset := range o.state.TrackedAssets {
		b, err := o.tx.BalanceOf(ctx, asset, p.Holder)
		if err != nil {
			return fmt.Errorf("reading %s balance: %w", asset, err)
		}
		// Capped at the balance: past one year at 100% the formula exceeds it.
		fee := decimal.Min(domain.AnnualFee(b, p.ProtocolFeeBpsPerYear, elapsed), b)
		if fee.IsZero() {
			continue
		}
		if err := o.tx.TransferOut(ctx, asset, p.ProtocolFeeSink, fee); err != nil {
			return fmt.Errorf("paying protocol fee in %s: %w", asset, err)
		}
		protocolFees = append(protocolFees, domain.Payout{Asset: asset, Amount: fee})
	}

	if ownerFee.IsPositive() {
		o.state.mint(p.Owner, ownerFee)
	}
	o.state.LastAccrual = o.now

	if ownerFee.IsPositive() || len(protocolFees) > 0 {
		o.emit(KindFeesAccrued, FeesAccrued{
			ElapsedSeconds: elapsed,
			OwnerFeeShares: ownerFee,
			ProtocolFees:   protocolFees,
		})
	}
	return nil
}

// value prices the fund's tracked balances as staged in the transaction.
func (o *op) value(ctx context.Context) (decimal.Decimal, error) {
	p := o.fund.params
	items, err := holdings(ctx, o.tx, p.Holder, o.state.TrackedAssets)
	if err != nil {
		return decimal.Zero, err
	}
	q, err := o.fund.valuer.ComputeTotalValue(ctx, items, p.DenominationAsset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("valuing fund: %w", err)
	}
	return q.Amount, nil
}

func (o *op) invest(ctx context.Context, investor domain.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	if !domain.IsPositiveUint(amount) {
		return decimal.Zero, fmt.Errorf("deposit of %s: %w", amount, domain.ErrInvalidAmount)
	}
	p := o.fund.params

	// Valued before the deposit lands so the new money buys in at the
	// existing share price.
	var valueBefore decimal.Decimal
	if o.state.TotalShares.IsPositive() {
		v, err := o.value(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		if v.IsZero() {
			return decimal.Zero, fmt.Errorf("%s shares outstanding: %w", o.state.TotalShares, domain.ErrZeroValue)
		}
		valueBefore = v
	}

	if err := o.tx.TransferIn(ctx, p.DenominationAsset, investor, amount); err != nil {
		return decimal.Zero, fmt.Errorf("pulling deposit from %s: %w", investor, err)
	}

	fee := domain.BpsOf(amount, p.DepositFeeBps)
	net := amount.Sub(fee)
	if fee.IsPositive() && p.DepositFeePolicy == DepositFeeForward {
		if err := o.tx.TransferOut(ctx, p.DenominationAsset, p.ProtocolFeeSink, fee); err != nil {
			return decimal.Zero, fmt.Errorf("forwarding deposit fee: %w", err)
		}
	}

	var minted decimal.Decimal
	if o.state.TotalShares.IsZero() {
		minted = net.Mul(p.ShareScale())
	} else {
		minted = domain.MulDivFloor(net, o.state.TotalShares, valueBefore)
	}
	if minted.IsZero() {
		return decimal.Zero, fmt.Errorf("deposit of %s mints no shares: %w", amount, domain.ErrInvalidAmount)
	}

	o.state.track(p.DenominationAsset)
	o.state.mint(investor, minted)
	o.emit(KindDepositRecorded, DepositRecorded{
		Investor:     investor,
		Amount:       amount,
		DepositFee:   fee,
		SharesMinted: minted,
	})
	return minted, nil
}

func (o *op) redeem(ctx context.Context, investor domain.Address, shares decimal.Decimal) ([]domain.Payout, error) {
	if !domain.IsPositiveUint(shares) {
		return nil, fmt.Errorf("redemption of %s shares: %w", shares, domain.ErrInvalidAmount)
	}
	if held := o.state.Shares[investor]; held.LessThan(shares) {
		return nil, fmt.Errorf("%s holds %s shares, redeeming %s: %w", investor, held, shares, domain.ErrInsufficientShares)
	}
	p := o.fund.params
	total := o.state.TotalShares

	payouts := make([]domain.Payout, 0, len(o.state.TrackedAssets))
	for _, asset := range o.state.TrackedAssets {
		b, err := o.tx.BalanceOf(ctx, asset, p.Holder)
		if err != nil {
			return nil, fmt.Errorf("reading %s balance: %w", asset, err)
		}
		amount := domain.MulDivFloor(b, shares, total)
		if amount.IsPositive() {
			if err := o.tx.TransferOut(ctx, asset, investor, amount); err != nil {
				return nil, fmt.Errorf("paying out %s: %w", asset, err)
			}
		}
		payouts = append(payouts, domain.Payout{Asset: asset, Amount: amount})
	}

	o.state.burn(investor, shares)
	o.emit(KindRedemptionRecorded, RedemptionRecorded{
		Investor: investor,
		Shares:   shares,
		Payouts:  payouts,
	})
	return payouts, nil
}

func (o *op) addTrackedAssets(assets []domain.AssetID) error {
	for _, a := range assets {
		if a == "" {
			return fmt.Errorf("empty asset id: %w", domain.ErrInvalidInput)
		}
		if !o.fund.valuer.IsSupportedAsset(a) {
			return fmt.Errorf("tracking %s: %w", a, domain.ErrUnknownAsset)
		}
	}

	added := lo.Filter(assets, func(a domain.AssetID, _ int) bool {
		return o.state.track(a)
	})
	if len(added) > 0 {
		o.emit(KindTrackedAssetsAdded, TrackedAssetsAdded{Assets: added})
	}
	return nil
}
