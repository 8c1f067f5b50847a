package worker

import (
	"context"
	"time"
)

// QuoteFetcher refreshes the stored feed rounds from an external provider.
type QuoteFetcher interface {
	FetchAndStoreQuotes(ctx context.Context) error
}

// QuoteWorker periodically refreshes external price rounds so the
// aggregator never reads a round older than the stale threshold.
type QuoteWorker struct {
	fetcher  QuoteFetcher
	interval time.Duration
}

// NewQuoteWorker creates a new QuoteWorker.
func NewQuoteWorker(fetcher QuoteFetcher, interval time.Duration) *QuoteWorker {
	return &QuoteWorker{
		fetcher:  fetcher,
		interval: interval,
	}
}

// Run blocks until the context is cancelled.
func (w *QuoteWorker) Run(ctx context.Context) {
	runEvery(ctx, "QuoteWorker", w.interval, w.fetcher.FetchAndStoreQuotes)
}
