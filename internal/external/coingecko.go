package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// CoinFeed describes how a feed ref is sourced from CoinGecko.
type CoinFeed struct {
	CoinID   string
	Currency string // "usd" or "eth"
}

// FeedMapping maps feed refs to CoinGecko coin IDs and quote currencies.
var FeedMapping = map[string]CoinFeed{
	"ETH/USD":  {CoinID: "ethereum", Currency: "usd"},
	"BTC/USD":  {CoinID: "bitcoin", Currency: "usd"},
	"USDC/USD": {CoinID: "usd-coin", Currency: "usd"},
	"USDT/USD": {CoinID: "tether", Currency: "usd"},
	"DAI/USD":  {CoinID: "dai", Currency: "usd"},
	"LINK/ETH": {CoinID: "chainlink", Currency: "eth"},
	"WBTC/ETH": {CoinID: "wrapped-bitcoin", Currency: "eth"},
	"WETH/ETH": {CoinID: "weth", Currency: "eth"},
}

// currencyDecimals is the integer scale rounds are stored with per quote currency.
var currencyDecimals = map[string]int32{
	"usd": domain.USDRateDecimals,
	"eth": domain.ETHRateDecimals,
}

// FetchedRound is a price scaled to an integer, as published by the provider.
type FetchedRound struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// CoinGeckoClient fetches prices from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	delay      time.Duration
	maxRetries int
	feeds      map[string]CoinFeed
}

// NewCoinGeckoClient creates a new CoinGecko API client for FeedMapping.
func NewCoinGeckoClient(baseURL string, delay time.Duration, maxRetries int) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		delay:      delay,
		maxRetries: maxRetries,
		feeds:      FeedMapping,
	}
}

// FeedRefs lists the feeds this client can refresh, sorted.
func (c *CoinGeckoClient) FeedRefs() []string {
	refs := lo.Keys(c.feeds)
	slices.Sort(refs)
	return refs
}

// FetchRounds fetches the latest price of every mapped feed.
// Prices are scaled to 8 decimals for USD feeds and 18 for ETH feeds and
// floored to integers.
func (c *CoinGeckoClient) FetchRounds(ctx context.Context) (map[string]FetchedRound, error) {
	ids := lo.Uniq(lo.Map(lo.Values(c.feeds), func(f CoinFeed, _ int) string { return f.CoinID }))
	currencies := lo.Uniq(lo.Map(lo.Values(c.feeds), func(f CoinFeed, _ int) string { return f.Currency }))
	slices.Sort(ids)
	slices.Sort(currencies)

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s&include_last_updated_at=true",
		c.baseURL, strings.Join(ids, ","), strings.Join(currencies, ","))

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	// Parse: {"ethereum":{"usd":3012.55,"last_updated_at":1700000000},...}
	// Numbers are kept as text so no precision is lost to float64.
	var raw map[string]map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko response: %w", err)
	}

	result := make(map[string]FetchedRound)
	for ref, feed := range c.feeds {
		prices, ok := raw[feed.CoinID]
		if !ok {
			continue
		}
		num, ok := prices[feed.Currency]
		if !ok {
			continue
		}
		p, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("parsing %s price %q: %w", ref, num, err)
		}

		updatedAt := time.Now().UTC()
		if ts, err := prices["last_updated_at"].Int64(); err == nil && ts > 0 {
			updatedAt = time.Unix(ts, 0).UTC()
		}

		result[ref] = FetchedRound{
			Price:     p.Shift(currencyDecimals[feed.Currency]).Floor(),
			UpdatedAt: updatedAt,
		}
	}

	return result, nil
}

func (c *CoinGeckoClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			baseDelay := c.delay
			if baseDelay == 0 {
				baseDelay = 10 * time.Second
			}
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating CoinGecko request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("CoinGecko request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading CoinGecko response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("CoinGecko rate limited (attempt %d/%d)", attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil, lastErr
}
