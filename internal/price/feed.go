package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPrice indicates that a feed has never published a round.
var ErrNoPrice = errors.New("no price available")

// Round is the latest answer of a price feed.
type Round struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Feed reads the latest round of a price feed.
type Feed interface {
	Read(ctx context.Context, feedRef string) (Round, error)
}

// StaticFeed is an in-memory Feed whose rounds are set by the caller.
type StaticFeed struct {
	mu     sync.RWMutex
	rounds map[string]Round
}

// NewStaticFeed creates an empty StaticFeed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{rounds: make(map[string]Round)}
}

// Set publishes a round for feedRef.
func (f *StaticFeed) Set(feedRef string, price decimal.Decimal, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rounds[feedRef] = Round{Price: price, UpdatedAt: updatedAt}
}

func (f *StaticFeed) Read(_ context.Context, feedRef string) (Round, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	r, ok := f.rounds[feedRef]
	if !ok {
		return Round{}, fmt.Errorf("feed %s: %w", feedRef, ErrNoPrice)
	}
	return r, nil
}
