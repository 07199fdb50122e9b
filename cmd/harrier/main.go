// Harrier - Blockchain AML screening and compliance case management.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/chain"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/refdata"
	"github.com/opensource-finance/harrier/internal/registry"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/velocity"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	source, err := newChainSource(cfg.Chain)
	if err != nil {
		slog.Error("failed to initialize chain source", "error", err)
		os.Exit(1)
	}
	slog.Info("chain source initialized", "base_url", cfg.Chain.BaseURL)

	// Reference data snapshots, refreshable via POST /refdata/reload.
	ref := refdata.NewStore()
	if err := ref.Reload(ctx, repo); err != nil {
		slog.Error("failed to load reference data", "error", err)
		os.Exit(1)
	}
	slog.Info("reference data loaded",
		"entity_types", ref.EntityTypeCount(),
		"jurisdictions", ref.JurisdictionCount(),
	)

	velocitySvc := velocity.NewService(source, cacheImpl)

	engine, err := rules.NewEngine(velocitySvc.GetVelocityGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRiskRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load risk rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	scoringSvc, err := scoring.NewService(repo, cacheImpl, source, ref, engine, cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize scoring service", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring service initialized",
		"max_hops", cfg.Scoring.MaxHops,
		"hop_decay", cfg.Scoring.HopWeightDecay,
	)

	registrySvc := registry.NewService(repo)
	pipelineSvc := pipeline.NewService(repo, busImpl, scoringSvc, source, cfg.Pipeline)

	// Async worker runs the scheduled scan and observed-transaction handling
	// for a single organization.
	var asyncWorker *worker.Worker
	if orgID := os.Getenv("HARRIER_ORGANIZATION"); orgID != "" &&
		(cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true") {
		asyncWorker = worker.New(pipelineSvc, busImpl, repo, source, orgID, cfg.Pipeline)
		if err := asyncWorker.Start(ctx); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, scoringSvc, registrySvc, pipelineSvc, engine, ref, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// applyEnvOverrides adjusts the tier defaults from environment variables.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_CHAIN_URL"); v != "" {
		cfg.Chain.BaseURL = v
	}
	if v := os.Getenv("HARRIER_SCAN_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.ScanIntervalSecs = secs
		}
	}
	if v := os.Getenv("HARRIER_ALERT_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.AlertThreshold = threshold
		}
	}
}

// newChainSource selects the chain oracle. "memory" runs without an indexer,
// for demos and local development.
func newChainSource(cfg domain.ChainConfig) (domain.ChainSource, error) {
	if cfg.BaseURL == "memory" {
		return chain.NewMemorySource(), nil
	}
	return chain.NewHTTPSource(cfg)
}

// loadRiskRules loads rules from the database into the engine, falling back
// to the builtin set when the database holds none.
func loadRiskRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRiskRules(ctx)
	if err != nil {
		return err
	}
	if len(dbRules) > 0 {
		slog.Info("loading risk rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	builtin := rules.DefaultRiskRules()
	slog.Info("no risk rules in database, loading builtins", "count", len(builtin))
	return engine.LoadRules(builtin)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║    Blockchain AML Screening Engine        ║")
	fmt.Println("  ║     Every address has a history.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score/address        - Score an address")
	fmt.Println("    POST /score/transaction    - Score a transaction")
	fmt.Println("    GET  /addresses            - List monitored addresses")
	fmt.Println("    POST /addresses            - Register a monitored address")
	fmt.Println("    POST /addresses/bulk       - Bulk upload addresses")
	fmt.Println("    GET  /addresses/{id}/history - Address audit history")
	fmt.Println("    GET  /cases                - List compliance cases")
	fmt.Println("    POST /cases/{id}/status    - Update case status")
	fmt.Println("    POST /cases/{id}/assignee  - Assign a case")
	fmt.Println("    POST /scan                 - Run the transaction scan")
	fmt.Println("    GET  /rules                - List risk rules")
	fmt.Println("    POST /rules/reload         - Hot-reload risk rules")
	fmt.Println("    POST /refdata/reload       - Reload reference data")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
