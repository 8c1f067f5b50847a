package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/mtlprog/hexa/internal/metrics"
	"github.com/mtlprog/hexa/internal/price"
)

// RoundFetcher fetches the latest provider rounds.
type RoundFetcher interface {
	FetchRounds(ctx context.Context) (map[string]FetchedRound, error)
}

// Service keeps external feed rounds up to date and serves them as a
// price.Feed.
type Service struct {
	fetcher RoundFetcher
	repo    RoundRepository
}

// NewService creates a new external price Service.
func NewService(fetcher RoundFetcher, repo RoundRepository) *Service {
	return &Service{
		fetcher: fetcher,
		repo:    repo,
	}
}

// FetchAndStoreQuotes fetches all external rounds and stores them in the database.
func (s *Service) FetchAndStoreQuotes(ctx context.Context) (err error) {
	defer func() { metrics.RecordQuoteFetch(err) }()

	rounds, err := s.fetcher.FetchRounds(ctx)
	if err != nil {
		return fmt.Errorf("fetching external prices: %w", err)
	}

	for ref, r := range rounds {
		if err := s.repo.SaveRound(ctx, ref, r.Price, r.UpdatedAt); err != nil {
			return fmt.Errorf("storing round for %s: %w", ref, err)
		}
	}

	return nil
}

// Read returns the stored round of feedRef. Freshness is judged by the
// caller from UpdatedAt.
func (s *Service) Read(ctx context.Context, feedRef string) (price.Round, error) {
	r, err := s.repo.GetRound(ctx, feedRef)
	if err != nil {
		if errors.Is(err, ErrRoundNotFound) {
			return price.Round{}, fmt.Errorf("feed %s: %w", feedRef, price.ErrNoPrice)
		}
		return price.Round{}, err
	}
	return price.Round{Price: r.Price, UpdatedAt: r.UpdatedAt}, nil
}

// Rounds lists every stored round.
func (s *Service) Rounds(ctx context.Context) ([]StoredRound, error) {
	return s.repo.GetAllRounds(ctx)
}
