package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/hexa/internal/api"
	"github.com/mtlprog/hexa/internal/config"
	"github.com/mtlprog/hexa/internal/database"
	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/export"
	"github.com/mtlprog/hexa/internal/external"
	"github.com/mtlprog/hexa/internal/fund"
	"github.com/mtlprog/hexa/internal/ledger"
	"github.com/mtlprog/hexa/internal/metrics"
	"github.com/mtlprog/hexa/internal/price"
	"github.com/mtlprog/hexa/internal/registry"
	"github.com/mtlprog/hexa/internal/snapshot"
	"github.com/mtlprog/hexa/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "hexa",
		Usage: "pooled-investment fund accounting service",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "memory", Usage: "keep the ledger, funds and rounds in process instead of PostgreSQL"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: migrate,
			},
			{
				Name:  "mint",
				Usage: "credit tokens to a ledger account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "asset", Required: true},
					&cli.StringFlag{Name: "holder", Required: true},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "amount in the asset's smallest unit"},
				},
				Action: mint,
			},
			{
				Name:  "approve",
				Usage: "set the amount a fund holder may pull from an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "asset", Required: true},
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.StringFlag{Name: "spender", Required: true},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "amount in the asset's smallest unit"},
				},
				Action: approve,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// connect opens the database and applies pending migrations.
func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if !cfg.RequireDatabase() {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create migrations sub-fs: %w", err)
	}
	n, err := database.RunMigrations(ctx, pool, migrationsSub)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if n > 0 {
		slog.Info("database migrated", "applied", n)
	}
	return pool, nil
}

func migrate(c *cli.Context) error {
	pool, err := connect(c.Context, config.Load())
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func mint(c *cli.Context) error {
	amount, err := decimal.NewFromString(c.String("amount"))
	if err != nil {
		return fmt.Errorf("parsing amount: %w", err)
	}
	pool, err := connect(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer pool.Close()

	return ledger.NewPostgres(pool).Mint(c.Context,
		domain.AssetID(c.String("asset")), domain.Address(c.String("holder")), amount)
}

func approve(c *cli.Context) error {
	amount, err := decimal.NewFromString(c.String("amount"))
	if err != nil {
		return fmt.Errorf("parsing amount: %w", err)
	}
	pool, err := connect(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer pool.Close()

	return ledger.NewPostgres(pool).Approve(c.Context,
		domain.AssetID(c.String("asset")), domain.Address(c.String("owner")), domain.Address(c.String("spender")), amount)
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()
	metrics.Init()

	var (
		tokenLedger domain.TokenLedger
		rounds      external.RoundRepository
		primitives  price.PrimitiveRepository
		fundRepo    registry.Repository
		snapRepo    snapshot.Repository
		history     export.HistoryReader
		events      api.EventLister
		sink        fund.EventSink = fund.LogSink{}
	)

	if c.Bool("memory") {
		slog.Warn("running with in-memory storage, nothing survives a restart")
		tokenLedger = ledger.NewMemory()
		rounds = external.NewMemoryRoundRepository()
	} else {
		pool, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgEvents := fund.NewPgEventSink(pool)
		pgSnapshots := snapshot.NewPgRepository(pool)

		tokenLedger = ledger.NewPostgres(pool)
		rounds = external.NewPgRoundRepository(pool)
		primitives = price.NewPgPrimitiveRepository(pool)
		fundRepo = registry.NewPgRepository(pool)
		snapRepo = pgSnapshots
		history = pgSnapshots
		events = pgEvents
		sink = fund.MultiSink{fund.LogSink{}, pgEvents}
	}

	// External price feeds
	coingecko := external.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
	externalSvc := external.NewService(coingecko, rounds)

	// Price aggregator and its stored primitives
	agg := price.NewAggregator(externalSvc, price.Options{
		StaleThreshold: cfg.PriceStaleThreshold,
		ReferenceFeed:  cfg.ReferenceFeed,
	})
	funds := registry.New(tokenLedger, agg, fundRepo, fund.WithEventSink(sink))
	catalog := price.NewCatalog(agg, primitives, funds)
	nPrimitives, err := catalog.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load primitives: %w", err)
	}
	slog.Info("primitives loaded", "count", nPrimitives)

	// Funds
	nFunds, err := funds.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load funds: %w", err)
	}
	slog.Info("funds loaded", "count", nFunds)

	// Statements and their export
	statements := snapshot.NewService(funds, snapRepo)
	var writers []export.Writer
	if cfg.StatementDir != "" {
		writers = append(writers, export.NewExcelWriter(cfg.StatementDir))
	}
	if cfg.SheetsEnabled() {
		sheetsWriter, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return fmt.Errorf("failed to create sheets writer: %w", err)
		}
		writers = append(writers, sheetsWriter)
	}
	var hook worker.AfterStatementHook
	if len(writers) > 0 {
		hook = export.NewService(history, writers...)
	}

	// Start workers
	go worker.NewQuoteWorker(externalSvc, cfg.QuoteWorkerInterval).Run(ctx)
	if cfg.AccrualWorkerEnabled() {
		go worker.NewAccrualWorker(func() []worker.Accruer {
			return lo.Map(funds.List(), func(f *fund.Fund, _ int) worker.Accruer { return f })
		}, cfg.AccrualWorkerInterval).Run(ctx)
	}
	go worker.NewStatementWorker(statements, cfg.StatementWorkerInterval, hook).Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, state-changing endpoints are unprotected")
	}

	// Start HTTP server
	handler := api.NewHandler(catalog, agg, funds, statements, events)
	srv := api.NewServer(cfg.HTTPPort, handler, cfg.AdminAPIKey)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	}
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
