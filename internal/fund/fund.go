package fund

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// Valuer prices a basket of assets in a quote asset.
type Valuer interface {
	ComputeTotalValue(ctx context.Context, items []domain.ValueItem, quoteAsset domain.AssetID) (domain.Quote, error)
	IsSupportedAsset(asset domain.AssetID) bool
}

// Fund is a single pooled-investment fund. All state-changing operations are
// serialized and either commit completely or leave nothing behind.
type Fund struct {
	id     uuid.UUID
	params Params
	ledger domain.TokenLedger
	valuer Valuer
	now    func() time.Time
	sink   EventSink

	mu    sync.Mutex
	state State
}

// Option configures a Fund.
type Option func(*Fund)

// WithClock overrides the wall clock used for fee accrual.
func WithClock(now func() time.Time) Option {
	return func(f *Fund) { f.now = now }
}

// WithEventSink sets where committed events are published. Defaults to LogSink.
func WithEventSink(sink EventSink) Option {
	return func(f *Fund) { f.sink = sink }
}

// New creates an empty fund whose fee clock starts now.
func New(id uuid.UUID, params Params, ledger domain.TokenLedger, valuer Valuer, opts ...Option) (*Fund, error) {
	f, err := build(id, params, ledger, valuer, opts)
	if err != nil {
		return nil, err
	}
	f.state = newState(f.clock())
	return f, nil
}

// Restore rebuilds a fund from persisted state.
func Restore(id uuid.UUID, params Params, state State, ledger domain.TokenLedger, valuer Valuer, opts ...Option) (*Fund, error) {
	f, err := build(id, params, ledger, valuer, opts)
	if err != nil {
		return nil, err
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("restoring fund %s: %w", id, err)
	}
	f.state = state.clone()
	f.state.LastAccrual = f.state.LastAccrual.UTC().Truncate(time.Second)
	return f, nil
}

func build(id uuid.UUID, params Params, ledger domain.TokenLedger, valuer Valuer, opts []Option) (*Fund, error) {
	if ledger == nil {
		panic("fund.New: ledger is nil")
	}
	if valuer == nil {
		panic("fund.New: valuer is nil")
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	f := &Fund{
		id:     id,
		params: params,
		ledger: ledger,
		valuer: valuer,
		now:    time.Now,
		sink:   LogSink{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// clock returns the current time at the one-second resolution fees accrue at.
func (f *Fund) clock() time.Time {
	return f.now().UTC().Truncate(time.Second)
}

func (f *Fund) ID() uuid.UUID  { return f.id }
func (f *Fund) Params() Params { return f.params }

// Invest pulls amount of the denomination asset from investor and mints
// shares against the fund's value before the deposit.
func (f *Fund) Invest(ctx context.Context, investor domain.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	var minted decimal.Decimal
	err := f.apply(ctx, opInvest, true, func(o *op) error {
		var err error
		minted, err = o.invest(ctx, investor, amount)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return minted, nil
}

// Redeem burns shares of investor and pays out the proportional slice of
// every tracked asset.
func (f *Fund) Redeem(ctx context.Context, investor domain.Address, shares decimal.Decimal) ([]domain.Payout, error) {
	var payouts []domain.Payout
	err := f.apply(ctx, opRedeem, true, func(o *op) error {
		var err error
		payouts, err = o.redeem(ctx, investor, shares)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// AddTrackedAssets appends assets the fund does not track yet, keeping their
// order. Fees are not accrued.
func (f *Fund) AddTrackedAssets(ctx context.Context, assets []domain.AssetID) error {
	return f.apply(ctx, opAddAssets, false, func(o *op) error {
		return o.addTrackedAssets(assets)
	})
}

// Accrue settles owner and protocol fees up to now.
func (f *Fund) Accrue(ctx context.Context) error {
	return f.apply(ctx, opAccrue, true, func(*op) error { return nil })
}

// Holdings returns the committed balance of every tracked asset.
func (f *Fund) Holdings(ctx context.Context) ([]domain.ValueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return holdings(ctx, f.ledger, f.params.Holder, f.state.TrackedAssets)
}

// TotalValue is the gross asset value in the denomination asset, as of the
// last committed operation. Pending fees are not deducted.
func (f *Fund) TotalValue(ctx context.Context) (domain.Quote, error) {
	items, err := f.Holdings(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	q, err := f.valuer.ComputeTotalValue(ctx, items, f.params.DenominationAsset)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("valuing fund %s: %w", f.id, err)
	}
	return q, nil
}

// SharePrice is the value of one whole share (10^18 units) in the
// denomination asset. An empty fund reports the bootstrap price.
func (f *Fund) SharePrice(ctx context.Context) (decimal.Decimal, error) {
	total := f.Snapshot().TotalShares
	if total.IsZero() {
		return domain.Pow10(f.params.DenominationDecimals), nil
	}
	q, err := f.TotalValue(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.MulDivFloor(q.Amount, domain.ShareUnit(), total), nil
}

// Snapshot returns a copy of the current state.
func (f *Fund) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// BalanceOf returns the share balance of investor.
func (f *Fund) BalanceOf(investor domain.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Shares[investor]
}

type balanceReader interface {
	BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Address) (decimal.Decimal, error)
}

func holdings(ctx context.Context, r balanceReader, holder domain.Address, assets []domain.AssetID) ([]domain.ValueItem, error) {
	items := make([]domain.ValueItem, 0, len(assets))
	for _, asset := range assets {
		b, err := r.BalanceOf(ctx, asset, holder)
		if err != nil {
			return nil, fmt.Errorf("reading %s balance: %w", asset, err)
		}
		items = append(items, domain.ValueItem{Asset: asset, Amount: b})
	}
	return items, nil
}
