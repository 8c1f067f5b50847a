package price

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/metrics"
)

// DefaultReferenceFeed is the ETH/USD feed used to convert between rate assets.
const DefaultReferenceFeed = "ETH/USD"

// Options configures an Aggregator. They are fixed for its lifetime.
type Options struct {
	// StaleThreshold is the maximum age of a feed round.
	StaleThreshold time.Duration
	// ReferenceFeed prices one ETH in USD with 8 decimals.
	ReferenceFeed string
	// Now overrides the wall clock, mostly for tests.
	Now func() time.Time
}

// Aggregator converts balances of registered primitives into a single value
// expressed in a quote asset.
type Aggregator struct {
	feed           Feed
	registry       *registry
	staleThreshold time.Duration
	referenceFeed  string
	now            func() time.Time
}

// NewAggregator creates an Aggregator reading prices from feed.
func NewAggregator(feed Feed, opts Options) *Aggregator {
	if feed == nil {
		panic("price.NewAggregator: feed is nil")
	}
	if opts.ReferenceFeed == "" {
		opts.ReferenceFeed = DefaultReferenceFeed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		feed:           feed,
		registry:       newRegistry(),
		staleThreshold: opts.StaleThreshold,
		referenceFeed:  opts.ReferenceFeed,
		now:            opts.Now,
	}
}

// ZipPrimitives builds entries from parallel lists.
func ZipPrimitives(assets []domain.AssetID, feeds []string, rates []domain.RateAsset, decimals []int32) ([]domain.PrimitiveEntry, error) {
	n := len(assets)
	if len(feeds) != n || len(rates) != n || len(decimals) != n {
		return nil, fmt.Errorf("mismatched list lengths (assets %d, feeds %d, rates %d, decimals %d): %w",
			n, len(feeds), len(rates), len(decimals), domain.ErrInvalidInput)
	}
	return lo.Map(assets, func(a domain.AssetID, i int) domain.PrimitiveEntry {
		return domain.PrimitiveEntry{Asset: a, FeedRef: feeds[i], RateAsset: rates[i], Decimals: decimals[i]}
	}), nil
}

// RegisterPrimitives upserts entries. The batch is validated as a whole; a
// single invalid entry leaves the registry untouched.
func (a *Aggregator) RegisterPrimitives(entries []domain.PrimitiveEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	a.registry.upsert(entries)
	return nil
}

// RemovePrimitives unregisters assets. Unknown assets are ignored. It does not
// check whether a fund still values an asset; Catalog.Remove does.
func (a *Aggregator) RemovePrimitives(assets []domain.AssetID) {
	a.registry.remove(assets)
}

// Primitive returns the entry registered for asset.
func (a *Aggregator) Primitive(asset domain.AssetID) (domain.PrimitiveEntry, bool) {
	return a.registry.get(asset)
}

// IsSupportedAsset reports whether asset can be valued.
func (a *Aggregator) IsSupportedAsset(asset domain.AssetID) bool {
	_, ok := a.registry.get(asset)
	return ok
}

// Primitives lists every registered entry ordered by asset id.
func (a *Aggregator) Primitives() []domain.PrimitiveEntry {
	return a.registry.list()
}

// ComputeTotalValue values items in quoteAsset. Each item's contribution is
// floored independently; any unknown asset or unusable round fails the call.
func (a *Aggregator) ComputeTotalValue(ctx context.Context, items []domain.ValueItem, quoteAsset domain.AssetID) (q domain.Quote, err error) {
	start := time.Now()
	defer func() { metrics.RecordValuation(time.Since(start), err) }()

	quoteEntry, ok := a.registry.get(quoteAsset)
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote asset %s: %w", quoteAsset, domain.ErrUnknownAsset)
	}

	rates := &rateReader{feed: a.feed, now: a.now(), threshold: a.staleThreshold, seen: make(map[string]decimal.Decimal)}
	total := decimal.Zero
	for _, item := range items {
		if !domain.IsUint(item.Amount) {
			return domain.Quote{}, fmt.Errorf("asset %s amount %s: %w", item.Asset, item.Amount, domain.ErrInvalidAmount)
		}
		if item.Asset == quoteAsset {
			total = total.Add(item.Amount)
			continue
		}
		entry, ok := a.registry.get(item.Asset)
		if !ok {
			return domain.Quote{}, fmt.Errorf("asset %s: %w", item.Asset, domain.ErrUnknownAsset)
		}
		v, err := a.convert(ctx, rates, item.Amount, entry, quoteEntry)
		if err != nil {
			return domain.Quote{}, err
		}
		total = total.Add(v)
	}

	return domain.Quote{Amount: total, QuoteAsset: quoteAsset}, nil
}

// convert values amount of base in quote units with a single floor:
//
//	amount/baseUnit * baseRate/baseScale * conversion / (quoteRate/quoteScale) * quoteUnit
//
// where conversion is 1 for equal rate assets, otherwise the ETH/USD
// reference rate or its inverse.
func (a *Aggregator) convert(ctx context.Context, rates *rateReader, amount decimal.Decimal, base, quote domain.PrimitiveEntry) (decimal.Decimal, error) {
	baseRate, err := rates.read(ctx, base.FeedRef)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing %s: %w", base.Asset, err)
	}
	quoteRate, err := rates.read(ctx, quote.FeedRef)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing quote %s: %w", quote.Asset, err)
	}

	num := amount.Mul(baseRate).Mul(quote.RateAsset.Scale()).Mul(quote.Unit())
	den := base.Unit().Mul(base.RateAsset.Scale()).Mul(quoteRate)

	if base.RateAsset != quote.RateAsset {
		ref, err := rates.read(ctx, a.referenceFeed)
		if err != nil {
			return decimal.Zero, fmt.Errorf("reading reference feed: %w", err)
		}
		refScale := domain.Pow10(domain.ReferenceRateDecimals)
		if base.RateAsset == domain.RateAssetETH {
			num = num.Mul(ref)
			den = den.Mul(refScale)
		} else {
			num = num.Mul(refScale)
			den = den.Mul(ref)
		}
	}

	q, _ := num.QuoRem(den, 0)
	return q, nil
}

// rateReader reads each feed at most once per valuation and enforces the
// staleness and positivity rules.
type rateReader struct {
	feed      Feed
	now       time.Time
	threshold time.Duration
	seen      map[string]decimal.Decimal
}

func (r *rateReader) read(ctx context.Context, feedRef string) (decimal.Decimal, error) {
	if p, ok := r.seen[feedRef]; ok {
		return p, nil
	}
	round, err := r.feed.Read(ctx, feedRef)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading feed %s: %w", feedRef, err)
	}
	if age := r.now.Sub(round.UpdatedAt); age > r.threshold {
		return decimal.Zero, fmt.Errorf("feed %s updated %s ago: %w", feedRef, age.Truncate(time.Second), domain.ErrStalePrice)
	}
	if !round.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("feed %s answered %s: %w", feedRef, round.Price, domain.ErrInvalidPrice)
	}
	r.seen[feedRef] = round.Price
	return round.Price, nil
}
