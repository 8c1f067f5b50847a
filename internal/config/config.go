package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL             string
	HTTPPort                string
	AdminAPIKey             string
	PriceStaleThreshold     time.Duration
	ReferenceFeed           string
	CoinGeckoURL            string
	CoinGeckoDelay          time.Duration
	CoinGeckoRetryMax       int
	QuoteWorkerInterval     time.Duration
	AccrualWorkerInterval   time.Duration
	StatementWorkerInterval time.Duration
	StatementDir            string
	GoogleSheetsID          string
	GoogleCredentialsJSON   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:             envOrDefault("DATABASE_URL", ""),
		HTTPPort:                envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:             envOrDefault("ADMIN_API_KEY", ""),
		PriceStaleThreshold:     envOrDefaultDuration("PRICE_STALE_THRESHOLD", 25*time.Hour),
		ReferenceFeed:           envOrDefault("REFERENCE_FEED", "ETH/USD"),
		CoinGeckoURL:            envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoDelay:          envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax:       envOrDefaultInt("COINGECKO_RETRY_MAX", 5),
		QuoteWorkerInterval:     envOrDefaultDuration("QUOTE_WORKER_INTERVAL", 1*time.Hour),
		AccrualWorkerInterval:   envOrDefaultDuration("ACCRUAL_WORKER_INTERVAL", 0),
		StatementWorkerInterval: envOrDefaultDuration("STATEMENT_WORKER_INTERVAL", 24*time.Hour),
		StatementDir:            envOrDefault("STATEMENT_DIR", ""),
		GoogleSheetsID:          envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON:   envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// RequireDatabase warns when DATABASE_URL is missing and reports whether it is set.
func (c Config) RequireDatabase() bool {
	if c.DatabaseURL == "" {
		slog.Warn("required env var not set", "key", "DATABASE_URL")
		return false
	}
	return true
}

// AccrualWorkerEnabled reports whether funds settle fees on a timer. Off by
// default: each settlement compounds, so a fund settled daily mints its owner
// more shares than one settled only by deposits and redemptions.
func (c Config) AccrualWorkerEnabled() bool {
	return c.AccrualWorkerInterval > 0
}

// SheetsEnabled reports whether Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSheetsID != "" && c.GoogleCredentialsJSON != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
