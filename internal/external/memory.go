package external

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// MemoryRoundRepository is an in-process RoundRepository. Like the
// PostgreSQL one, it never replaces a round with an older one.
type MemoryRoundRepository struct {
	mu     sync.RWMutex
	rounds map[string]StoredRound
}

// NewMemoryRoundRepository creates an empty MemoryRoundRepository.
func NewMemoryRoundRepository() *MemoryRoundRepository {
	return &MemoryRoundRepository{rounds: make(map[string]StoredRound)}
}

func (m *MemoryRoundRepository) SaveRound(_ context.Context, feedRef string, price decimal.Decimal, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.rounds[feedRef]; ok && cur.UpdatedAt.After(updatedAt) {
		return nil
	}
	m.rounds[feedRef] = StoredRound{FeedRef: feedRef, Price: price, UpdatedAt: updatedAt}
	return nil
}

func (m *MemoryRoundRepository) GetRound(_ context.Context, feedRef string) (StoredRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[feedRef]
	if !ok {
		return StoredRound{}, fmt.Errorf("feed %s: %w", feedRef, ErrRoundNotFound)
	}
	return r, nil
}

func (m *MemoryRoundRepository) GetAllRounds(_ context.Context) ([]StoredRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rounds := lo.Values(m.rounds)
	slices.SortFunc(rounds, func(a, b StoredRound) int { return strings.Compare(a.FeedRef, b.FeedRef) })
	return rounds, nil
}
