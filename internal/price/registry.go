package price

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mtlprog/hexa/internal/domain"
)

// registry maps assets to their primitive entries. Entries are stored by
// value, so a reader never observes a partially updated entry.
type registry struct {
	mu      sync.RWMutex
	entries map[domain.AssetID]domain.PrimitiveEntry
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[domain.AssetID]domain.PrimitiveEntry),
	}
}

func (r *registry) get(asset domain.AssetID) (domain.PrimitiveEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[asset]
	return e, ok
}

func (r *registry) upsert(entries []domain.PrimitiveEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		r.entries[e.Asset] = e
	}
}

func (r *registry) remove(assets []domain.AssetID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range assets {
		delete(r.entries, a)
	}
}

// list returns all entries sorted by asset id.
func (r *registry) list() []domain.PrimitiveEntry {
	r.mu.RLock()
	entries := lo.Values(r.entries)
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b domain.PrimitiveEntry) int {
		switch {
		case a.Asset < b.Asset:
			return -1
		case a.Asset > b.Asset:
			return 1
		}
		return 0
	})
	return entries
}
