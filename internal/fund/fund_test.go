package fund

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/ledger"
	"github.com/mtlprog/hexa/internal/price"
)

const (
	usdc domain.AssetID = "USDC"
	weth domain.AssetID = "WETH"
	dai  domain.AssetID = "DAI"
	doge domain.AssetID = "DOGE"

	owner    domain.Address = "owner"
	holder   domain.Address = "fund-1"
	protocol domain.Address = "protocol"
	alice    domain.Address = "alice"
	bob      domain.Address = "bob"

	day  = 24 * time.Hour
	year = domain.SecondsPerYear * time.Second
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func e18(v int64) decimal.Decimal { return decimal.New(v, 18) }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

// flakyLedger fails the failAt-th TransferOut of every transaction when set.
type flakyLedger struct {
	*ledger.Memory
	failAt int
}

func (l *flakyLedger) Begin(ctx context.Context, h domain.Address) (domain.LedgerTx, error) {
	tx, err := l.Memory.Begin(ctx, h)
	if err != nil {
		return nil, err
	}
	return &flakyTx{LedgerTx: tx, failAt: l.failAt}, nil
}

type flakyTx struct {
	domain.LedgerTx
	failAt int
	outs   int
}

func (t *flakyTx) TransferOut(ctx context.Context, asset domain.AssetID, to domain.Address, amount decimal.Decimal) error {
	t.outs++
	if t.outs == t.failAt {
		return fmt.Errorf("ledger unavailable: %w", domain.ErrTransferFailed)
	}
	return t.LedgerTx.TransferOut(ctx, asset, to, amount)
}

type env struct {
	ledger *flakyLedger
	feed   *price.StaticFeed
	agg    *price.Aggregator
	clock  *testClock
	sink   *recordingSink
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &testClock{now: start}

	feed := price.NewStaticFeed()
	feed.Set("USDC/USD", d(100_000_000), start)
	feed.Set("DAI/USD", d(100_000_000), start)
	feed.Set("WETH/ETH", e18(1), start)
	feed.Set("ETH/USD", d(2000_00_000_000), start)

	agg := price.NewAggregator(feed, price.Options{StaleThreshold: 3 * year, Now: clock.Now})
	require.NoError(t, agg.RegisterPrimitives([]domain.PrimitiveEntry{
		{Asset: usdc, FeedRef: "USDC/USD", RateAsset: domain.RateAssetUSD, Decimals: 6},
		{Asset: dai, FeedRef: "DAI/USD", RateAsset: domain.RateAssetUSD, Decimals: 18},
		{Asset: weth, FeedRef: "WETH/ETH", RateAsset: domain.RateAssetETH, Decimals: 18},
	}))

	return &env{
		ledger: &flakyLedger{Memory: ledger.NewMemory()},
		feed:   feed,
		agg:    agg,
		clock:  clock,
		sink:   &recordingSink{},
	}
}

func baseParams() Params {
	return Params{
		Owner:                owner,
		Holder:               holder,
		DenominationAsset:    usdc,
		DenominationDecimals: 6,
		ProtocolFeeSink:      protocol,
	}
}

func (e *env) newFund(t *testing.T, mutate func(*Params)) *Fund {
	t.Helper()
	p := baseParams()
	if mutate != nil {
		mutate(&p)
	}
	f, err := New(uuid.New(), p, e.ledger, e.agg, WithClock(e.clock.Now), WithEventSink(e.sink))
	require.NoError(t, err)
	return f
}

func (e *env) fundInvestor(investor domain.Address, amount decimal.Decimal) {
	e.ledger.Mint(usdc, investor, amount)
	e.ledger.Approve(usdc, investor, holder, e.ledger.Allowance(usdc, investor, holder).Add(amount))
}

func (e *env) invest(t *testing.T, f *Fund, investor domain.Address, amount decimal.Decimal) decimal.Decimal {
	t.Helper()
	e.fundInvestor(investor, amount)
	minted, err := f.Invest(context.Background(), investor, amount)
	require.NoError(t, err)
	return minted
}

func (e *env) balance(t *testing.T, asset domain.AssetID, h domain.Address) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.BalanceOf(context.Background(), asset, h)
	require.NoError(t, err)
	return b
}

func assertSharesConsistent(t *testing.T, f *Fund) {
	t.Helper()
	s := f.Snapshot()
	require.NoError(t, s.Validate())
}

func assertDecimal(t *testing.T, want, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func TestInvestBootstrapsOneToOne(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)

	minted := e.invest(t, f, alice, d(100_000_000))

	assertDecimal(t, d(100_000_000).Mul(decimal.New(1, 12)), minted)
	assertDecimal(t, minted, f.BalanceOf(alice))
	assertDecimal(t, d(100_000_000), e.balance(t, usdc, holder))
	assert.Equal(t, []domain.AssetID{usdc}, f.Snapshot().TrackedAssets)

	sp, err := f.SharePrice(context.Background())
	require.NoError(t, err)
	assertDecimal(t, d(1_000_000), sp)
	assertSharesConsistent(t, f)
}

func TestInvestDepositFee(t *testing.T) {
	tests := []struct {
		name       string
		policy     DepositFeePolicy
		wantValue  int64
		wantSink   int64
		wantShares int64
	}{
		{"forwarded to sink", DepositFeeForward, 99_700_000, 300_000, 99_700_000},
		{"retained in fund", DepositFeeRetain, 100_000_000, 0, 99_700_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			f := e.newFund(t, func(p *Params) {
				p.DepositFeeBps = 30
				p.DepositFeePolicy = tt.policy
			})

			minted := e.invest(t, f, alice, d(100_000_000))

			assertDecimal(t, d(tt.wantShares).Mul(decimal.New(1, 12)), minted)
			q, err := f.TotalValue(context.Background())
			require.NoError(t, err)
			assertDecimal(t, d(tt.wantValue), q.Amount)
			assert.Equal(t, usdc, q.QuoteAsset)
			assertDecimal(t, d(tt.wantSink), e.balance(t, usdc, protocol))
		})
	}
}

func TestDepositFeeDoesNotDiluteExistingHolders(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.DepositFeeBps = 100 })
	e.invest(t, f, alice, d(10_000_000))

	before, err := f.SharePrice(context.Background())
	require.NoError(t, err)

	e.invest(t, f, bob, d(5_000_000))

	after, err := f.SharePrice(context.Background())
	require.NoError(t, err)
	assert.True(t, after.GreaterThanOrEqual(before), "share price fell from %s to %s", before, after)
}

func TestSecondInvestorPricedOnValueBeforeDeposit(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	e.invest(t, f, alice, d(100_000_000))

	// One WETH lands in the fund: 2000 USDC of value at ETH/USD 2000.
	e.ledger.Mint(weth, holder, e18(1))
	require.NoError(t, f.AddTrackedAssets(context.Background(), []domain.AssetID{weth}))

	q, err := f.TotalValue(context.Background())
	require.NoError(t, err)
	assertDecimal(t, d(2_100_000_000), q.Amount)

	minted := e.invest(t, f, bob, d(21_000_000))
	// 21 USDC against 2100 USDC of value buys 1% of the pre-deposit supply.
	assertDecimal(t, decimal.New(1, 18), minted)
	assertSharesConsistent(t, f)
}

func TestRedeemAllDrainsFund(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	minted := e.invest(t, f, alice, d(100_000_000))

	payouts, err := f.Redeem(context.Background(), alice, minted)
	require.NoError(t, err)

	require.Len(t, payouts, 1)
	assert.Equal(t, usdc, payouts[0].Asset)
	assertDecimal(t, d(100_000_000), payouts[0].Amount)
	assert.True(t, e.balance(t, usdc, holder).IsZero())
	assert.True(t, f.Snapshot().TotalShares.IsZero())
	assert.True(t, f.BalanceOf(alice).IsZero())
	assertDecimal(t, d(100_000_000), e.balance(t, usdc, alice))

	bal, ok := f.Snapshot().Shares[alice]
	require.True(t, ok, "drained holder keeps a ledger entry")
	assert.True(t, bal.IsZero())
}

func TestRedeemAfterDrainRebootstraps(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	minted := e.invest(t, f, alice, d(100_000_000))
	_, err := f.Redeem(context.Background(), alice, minted)
	require.NoError(t, err)

	again := e.invest(t, f, bob, d(7))
	assertDecimal(t, d(7).Mul(decimal.New(1, 12)), again)
}

func TestInvestRedeemRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		feeBps int64
		exact  bool
	}{
		{"no deposit fee", 0, true},
		{"with deposit fee", 45, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			f := e.newFund(t, func(p *Params) { p.DepositFeeBps = tt.feeBps })
			e.invest(t, f, alice, d(100_000_000))

			x := d(12_345)
			minted := e.invest(t, f, bob, x)
			payouts, err := f.Redeem(context.Background(), bob, minted)
			require.NoError(t, err)

			got := payouts[0].Amount
			if tt.exact {
				assertDecimal(t, x, got)
			} else {
				assert.True(t, got.LessThan(x), "got back %s of %s", got, x)
			}
			assertSharesConsistent(t, f)
		})
	}
}

func TestRedeemPaysEveryTrackedAsset(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	minted := e.invest(t, f, alice, d(100_000_000))
	e.invest(t, f, bob, d(300_000_000))

	e.ledger.Mint(weth, holder, e18(4))
	require.NoError(t, f.AddTrackedAssets(context.Background(), []domain.AssetID{weth}))

	payouts, err := f.Redeem(context.Background(), alice, minted)
	require.NoError(t, err)

	require.Len(t, payouts, 2)
	assert.Equal(t, usdc, payouts[0].Asset)
	assertDecimal(t, d(100_000_000), payouts[0].Amount)
	assert.Equal(t, weth, payouts[1].Asset)
	assertDecimal(t, e18(1), payouts[1].Amount)
	assertDecimal(t, e18(1), e.balance(t, weth, alice))
	assertDecimal(t, e18(3), e.balance(t, weth, holder))
}

func TestRedeemIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.newFund(t, nil)
	minted := e.invest(t, f, alice, d(100_000_000))

	e.ledger.Mint(weth, holder, e18(2))
	e.ledger.Mint(dai, holder, e18(500))
	require.NoError(t, f.AddTrackedAssets(ctx, []domain.AssetID{weth, dai}))
	before := f.Snapshot()
	eventsBefore := len(e.sink.kinds())

	e.ledger.failAt = 3
	_, err := f.Redeem(ctx, alice, minted.Div(d(2)))
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	assert.Equal(t, before, f.Snapshot())
	assertDecimal(t, d(100_000_000), e.balance(t, usdc, holder))
	assertDecimal(t, e18(2), e.balance(t, weth, holder))
	assertDecimal(t, e18(500), e.balance(t, dai, holder))
	assert.True(t, e.balance(t, usdc, alice).IsZero())
	assert.True(t, e.balance(t, weth, alice).IsZero())
	assert.Len(t, e.sink.kinds(), eventsBefore)
}

func TestRedeemErrors(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	minted := e.invest(t, f, alice, d(1_000))

	tests := []struct {
		name     string
		investor domain.Address
		shares   decimal.Decimal
		wantErr  error
	}{
		{"zero shares", alice, decimal.Zero, domain.ErrInvalidAmount},
		{"negative shares", alice, d(-1), domain.ErrInvalidAmount},
		{"more than held", alice, minted.Add(d(1)), domain.ErrInsufficientShares},
		{"not a holder", bob, d(1), domain.ErrInsufficientShares},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Redeem(context.Background(), tt.investor, tt.shares)
			assert.ErrorIs(t, err, tt.wantErr)
			assertDecimal(t, minted, f.BalanceOf(alice))
		})
	}
}

func TestInvestErrorsLeaveNothingBehind(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, e *env, f *Fund)
		amount  decimal.Decimal
		wantErr error
	}{
		{
			name:    "zero amount",
			amount:  decimal.Zero,
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "no allowance",
			prepare: func(_ *testing.T, e *env, _ *Fund) { e.ledger.Mint(usdc, bob, d(500)) },
			amount:  d(500),
			wantErr: domain.ErrInsufficientAllowance,
		},
		{
			name: "balance too small",
			prepare: func(_ *testing.T, e *env, _ *Fund) {
				e.ledger.Mint(usdc, bob, d(100))
				e.ledger.Approve(usdc, bob, holder, d(500))
			},
			amount:  d(500),
			wantErr: domain.ErrTransferFailed,
		},
		{
			name: "stale feed",
			prepare: func(t *testing.T, e *env, f *Fund) {
				e.fundInvestor(bob, d(500))
				e.ledger.Mint(weth, holder, e18(1))
				require.NoError(t, f.AddTrackedAssets(context.Background(), []domain.AssetID{weth}))
				e.feed.Set("WETH/ETH", e18(1), start.Add(-4*year))
			},
			amount:  d(500),
			wantErr: domain.ErrStalePrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 200 })
			e.invest(t, f, alice, d(1_000_000))
			if tt.prepare != nil {
				tt.prepare(t, e, f)
			}
			e.clock.Advance(30 * day)
			before := f.Snapshot()

			_, err := f.Invest(context.Background(), bob, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			// The accrual of the failed call is rolled back too.
			assert.Equal(t, before, f.Snapshot())
			assertDecimal(t, d(1_000_000), e.balance(t, usdc, holder))
		})
	}
}

func TestInvestIntoWorthlessFund(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.ProtocolFeeBpsPerYear = domain.BasisPoints })
	e.invest(t, f, alice, d(1_000))

	// Two years at 100% per year skims everything, capped at the balance.
	e.clock.Advance(2 * year)
	require.NoError(t, f.Accrue(context.Background()))
	assert.True(t, e.balance(t, usdc, holder).IsZero())
	assertDecimal(t, d(1_000), e.balance(t, usdc, protocol))

	e.fundInvestor(bob, d(1_000))
	_, err := f.Invest(context.Background(), bob, d(1_000))
	assert.ErrorIs(t, err, domain.ErrZeroValue)
}

func TestInvestTooSmallToMintShares(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, nil)
	e.invest(t, f, alice, d(1_000))

	// Ten million WETH push one share unit far above one USDC unit.
	e.ledger.Mint(weth, holder, e18(10_000_000))
	require.NoError(t, f.AddTrackedAssets(context.Background(), []domain.AssetID{weth}))

	e.fundInvestor(bob, d(1))
	_, err := f.Invest(context.Background(), bob, d(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestOwnerFeeDilutesHolders(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 100 })
	e.invest(t, f, alice, d(100_000_000))
	e.invest(t, f, bob, d(100_000_000))

	aliceBefore := f.BalanceOf(alice)
	totalBefore := f.Snapshot().TotalShares

	e.clock.Advance(day)
	require.NoError(t, f.Accrue(context.Background()))

	s := f.Snapshot()
	assertDecimal(t, d(5_475_701_574_264_202), s.Shares[owner])
	assertDecimal(t, aliceBefore, f.BalanceOf(alice))
	assert.True(t, aliceBefore.Div(s.TotalShares).LessThan(aliceBefore.Div(totalBefore)))
	assertDecimal(t, d(200_000_000), e.balance(t, usdc, holder), "owner fee moves no assets")
	assert.Equal(t, start.Add(day), s.LastAccrual)
	assertSharesConsistent(t, f)
}

func TestSettlingMoreOftenCompoundsOwnerFee(t *testing.T) {
	ownerFee := func(p *Params) { p.OwnerFeeBpsPerYear = 100 }

	e1 := newEnv(t)
	once := e1.newFund(t, ownerFee)
	e1.invest(t, once, alice, d(100_000_000))
	e1.clock.Advance(year)
	require.NoError(t, once.Accrue(context.Background()))

	e2 := newEnv(t)
	twice := e2.newFund(t, ownerFee)
	e2.invest(t, twice, alice, d(100_000_000))
	e2.clock.Advance(year / 2)
	require.NoError(t, twice.Accrue(context.Background()))
	e2.clock.Advance(year / 2)
	require.NoError(t, twice.Accrue(context.Background()))

	assertDecimal(t, e18(1), once.BalanceOf(owner))
	// The second half-year is charged on a supply that already holds the first.
	assertDecimal(t, d(1_002_500_000_000_000_000), twice.BalanceOf(owner))
}

func TestProtocolFeeSkimsTrackedAssets(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.ProtocolFeeBpsPerYear = 200 })
	minted := e.invest(t, f, alice, d(100_000_000))
	e.ledger.Mint(weth, holder, e18(1))
	require.NoError(t, f.AddTrackedAssets(context.Background(), []domain.AssetID{weth}))

	e.clock.Advance(year)
	require.NoError(t, f.Accrue(context.Background()))

	assertDecimal(t, d(2_000_000), e.balance(t, usdc, protocol))
	assertDecimal(t, d(98_000_000), e.balance(t, usdc, holder))
	assertDecimal(t, decimal.New(2, 16), e.balance(t, weth, protocol))
	assertDecimal(t, minted, f.Snapshot().TotalShares, "protocol fee mints no shares")

	e.sink.mu.Lock()
	last := e.sink.events[len(e.sink.events)-1]
	e.sink.mu.Unlock()
	require.Equal(t, KindFeesAccrued, last.Kind)
	payload := last.Payload.(FeesAccrued)
	assert.Equal(t, int64(domain.SecondsPerYear), payload.ElapsedSeconds)
	assert.Len(t, payload.ProtocolFees, 2)
}

func TestRedeemAccruesBeforeRatio(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 100 })
	minted := e.invest(t, f, alice, d(100_000_000))

	e.clock.Advance(year)
	payouts, err := f.Redeem(context.Background(), alice, minted)
	require.NoError(t, err)

	// The owner's 1% fee share was minted first, so alice gets 100/101.
	assertDecimal(t, d(99_009_900), payouts[0].Amount)
	assertDecimal(t, e18(1), f.BalanceOf(owner))
	assertSharesConsistent(t, f)
}

func TestAccrueIdempotentAtSameInstant(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) {
		p.OwnerFeeBpsPerYear = 100
		p.ProtocolFeeBpsPerYear = 100
	})
	e.invest(t, f, alice, d(100_000_000))
	e.clock.Advance(day)

	require.NoError(t, f.Accrue(context.Background()))
	once := f.Snapshot()
	sinkOnce := e.balance(t, usdc, protocol)
	events := len(e.sink.kinds())

	require.NoError(t, f.Accrue(context.Background()))
	assert.Equal(t, once, f.Snapshot())
	assertDecimal(t, sinkOnce, e.balance(t, usdc, protocol))
	assert.Len(t, e.sink.kinds(), events, "no-op accrual emits nothing")
}

func TestLastAccrualNeverDecreases(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 100 })
	e.invest(t, f, alice, d(100_000_000))

	e.clock.Advance(day)
	require.NoError(t, f.Accrue(context.Background()))
	after := f.Snapshot()

	e.clock.Advance(-2 * day)
	require.NoError(t, f.Accrue(context.Background()))
	e.invest(t, f, bob, d(1_000))

	s := f.Snapshot()
	assert.Equal(t, after.LastAccrual, s.LastAccrual)
	assertDecimal(t, after.Shares[owner], s.Shares[owner])
}

func TestAddTrackedAssets(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 100 })
	e.invest(t, f, alice, d(1_000))
	e.clock.Advance(day)

	require.NoError(t, f.AddTrackedAssets(ctx, []domain.AssetID{weth, usdc, dai, weth}))
	assert.Equal(t, []domain.AssetID{usdc, weth, dai}, f.Snapshot().TrackedAssets)

	require.NoError(t, f.AddTrackedAssets(ctx, []domain.AssetID{dai}))
	assert.Equal(t, []domain.AssetID{usdc, weth, dai}, f.Snapshot().TrackedAssets)

	err := f.AddTrackedAssets(ctx, []domain.AssetID{doge})
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	err = f.AddTrackedAssets(ctx, []domain.AssetID{""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	s := f.Snapshot()
	assert.Equal(t, start, s.LastAccrual, "adding assets does not accrue")
	assert.True(t, s.Shares[owner].IsZero())

	kinds := e.sink.kinds()
	assert.Equal(t, []EventKind{KindDepositRecorded, KindTrackedAssetsAdded}, kinds)
}

func TestEventsCarryOperationResults(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.DepositFeeBps = 10 })
	minted := e.invest(t, f, alice, d(10_000))
	payouts, err := f.Redeem(context.Background(), alice, minted)
	require.NoError(t, err)

	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	require.Len(t, e.sink.events, 2)

	dep := e.sink.events[0]
	assert.Equal(t, f.ID(), dep.FundID)
	require.Equal(t, KindDepositRecorded, dep.Kind)
	deposit := dep.Payload.(DepositRecorded)
	assert.Equal(t, alice, deposit.Investor)
	assertDecimal(t, d(10_000), deposit.Amount)
	assertDecimal(t, d(10), deposit.DepositFee)
	assertDecimal(t, minted, deposit.SharesMinted)

	red := e.sink.events[1]
	require.Equal(t, KindRedemptionRecorded, red.Kind)
	redemption := red.Payload.(RedemptionRecorded)
	assert.Equal(t, alice, redemption.Investor)
	assertDecimal(t, minted, redemption.Shares)
	assert.Equal(t, payouts, redemption.Payouts)
	assert.NotEqual(t, dep.ID, red.ID)
}

func TestConcurrentOperationsKeepSharesConsistent(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 150 })
	e.invest(t, f, alice, d(1_000_000))

	investors := []domain.Address{"i0", "i1", "i2", "i3", "i4", "i5", "i6", "i7"}
	for _, inv := range investors {
		e.fundInvestor(inv, d(10_000))
	}

	var wg sync.WaitGroup
	for _, inv := range investors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.clock.Advance(time.Hour)
			minted, err := f.Invest(context.Background(), inv, d(10_000))
			if err != nil {
				t.Errorf("Invest(%s) error: %v", inv, err)
				return
			}
			if _, err := f.Redeem(context.Background(), inv, minted.Div(d(2)).Floor()); err != nil {
				t.Errorf("Redeem(%s) error: %v", inv, err)
			}
		}()
	}
	wg.Wait()

	assertSharesConsistent(t, f)
}

func TestRestoreRoundTrip(t *testing.T) {
	e := newEnv(t)
	f := e.newFund(t, func(p *Params) { p.OwnerFeeBpsPerYear = 100 })
	e.invest(t, f, alice, d(100_000_000))

	data, err := json.Marshal(f.Snapshot())
	require.NoError(t, err)

	var state State
	require.NoError(t, json.Unmarshal(data, &state))
	restored, err := Restore(f.ID(), f.Params(), state, e.ledger, e.agg, WithClock(e.clock.Now))
	require.NoError(t, err)

	e.clock.Advance(year)
	require.NoError(t, f.Accrue(context.Background()))
	// Both instances share the ledger, so only compare the share math.
	require.NoError(t, restored.Accrue(context.Background()))
	assertDecimal(t, f.BalanceOf(owner), restored.BalanceOf(owner))
	assertDecimal(t, f.Snapshot().TotalShares, restored.Snapshot().TotalShares)
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	e := newEnv(t)
	state := State{
		TrackedAssets: []domain.AssetID{usdc},
		Shares:        map[domain.Address]decimal.Decimal{alice: d(10)},
		TotalShares:   d(11),
		LastAccrual:   start,
	}
	_, err := Restore(uuid.New(), baseParams(), state, e.ledger, e.agg)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(*Params) {}, false},
		{"missing owner", func(p *Params) { p.Owner = "" }, true},
		{"missing sink", func(p *Params) { p.ProtocolFeeSink = "" }, true},
		{"holder is owner", func(p *Params) { p.Holder = owner }, true},
		{"missing denomination", func(p *Params) { p.DenominationAsset = "" }, true},
		{"too many decimals", func(p *Params) { p.DenominationDecimals = 19 }, true},
		{"deposit fee above 100%", func(p *Params) { p.DepositFeeBps = 10_001 }, true},
		{"negative owner fee", func(p *Params) { p.OwnerFeeBpsPerYear = -1 }, true},
		{"unknown policy", func(p *Params) { p.DepositFeePolicy = "burn" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			tt.mutate(&p)
			err := p.WithDefaults().Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
