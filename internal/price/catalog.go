package price

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/metrics"
)

// AssetUser reports whether something still values an asset through the
// aggregator.
type AssetUser interface {
	UsesAsset(asset domain.AssetID) bool
}

// Catalog keeps an Aggregator's primitives in sync with a repository.
// Storage is written before the aggregator is updated.
type Catalog struct {
	agg   *Aggregator
	repo  PrimitiveRepository
	users AssetUser
}

// NewCatalog creates a Catalog. repo may be nil for an in-memory setup; users
// may be nil when nothing depends on the registered primitives.
func NewCatalog(agg *Aggregator, repo PrimitiveRepository, users AssetUser) *Catalog {
	return &Catalog{agg: agg, repo: repo, users: users}
}

// Load registers every stored primitive with the aggregator.
func (c *Catalog) Load(ctx context.Context) (int, error) {
	if c.repo == nil {
		return 0, nil
	}
	entries, err := c.repo.ListPrimitives(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.agg.RegisterPrimitives(entries); err != nil {
		return 0, fmt.Errorf("registering stored primitives: %w", err)
	}
	return len(entries), nil
}

// Register validates and stores entries, then upserts them in the aggregator.
func (c *Catalog) Register(ctx context.Context, entries []domain.PrimitiveEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if c.repo != nil {
		if err := c.repo.SavePrimitives(ctx, entries); err != nil {
			return err
		}
	}
	if err := c.agg.RegisterPrimitives(entries); err != nil {
		return err
	}
	metrics.RecordPrimitiveChange("registered", len(entries))
	slog.Info("primitives registered", "assets", lo.Map(entries, func(e domain.PrimitiveEntry, _ int) domain.AssetID { return e.Asset }))
	return nil
}

// Remove deletes assets from storage and the aggregator. Assets a fund still
// tracks or is denominated in are refused with ErrAssetInUse.
func (c *Catalog) Remove(ctx context.Context, assets []domain.AssetID) error {
	if c.users != nil {
		if a, ok := lo.Find(assets, c.users.UsesAsset); ok {
			return fmt.Errorf("removing %s: %w: %w", a, domain.ErrAssetInUse, domain.ErrInvalidInput)
		}
	}
	if c.repo != nil {
		if err := c.repo.DeletePrimitives(ctx, assets); err != nil {
			return err
		}
	}
	c.agg.RemovePrimitives(assets)
	metrics.RecordPrimitiveChange("removed", len(assets))
	slog.Info("primitives removed", "assets", assets)
	return nil
}

// List returns every registered primitive ordered by asset id.
func (c *Catalog) List() []domain.PrimitiveEntry {
	return c.agg.Primitives()
}
