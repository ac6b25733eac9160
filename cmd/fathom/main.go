// Fathom - Insight fusion and budget recommendations over upstream signals.
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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opensource-finance/fathom/internal/api"
	"github.com/opensource-finance/fathom/internal/budget"
	"github.com/opensource-finance/fathom/internal/bus"
	"github.com/opensource-finance/fathom/internal/cache"
	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/lookup"
	"github.com/opensource-finance/fathom/internal/metrics"
	"github.com/opensource-finance/fathom/internal/repository"
	"github.com/opensource-finance/fathom/internal/rules"
	"github.com/opensource-finance/fathom/internal/tracing"
	"github.com/opensource-finance/fathom/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig(os.Getenv("FATHOM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fathom: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting fathom",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	tp := tracing.Setup(cfg.Tracing, Version)
	slog.Info("tracing initialized", "enabled", tp.Enabled())

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Cached read path over the upstream tables
	source := lookup.NewCachedSource(repo, cacheImpl, cfg.Cache.LocalTTLDuration(), logger)

	// Initialize advisory rule engine
	engine, err := rules.NewEngine(10)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize budget recommender
	policy, err := budget.PolicyFromConfig(cfg.Budget)
	if err != nil {
		slog.Error("invalid budget policy", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	aggregator, err := insight.NewAggregator(insight.Deps{
		Source:      source,
		Recommender: budget.NewRecommender(policy),
		Rules:       engine,
		Metrics:     recorder,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("failed to initialize aggregator", "error", err)
		os.Exit(1)
	}

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, aggregator, recorder, logger)
		if err := asyncWorker.Start(worker.Config{WorkerCount: cfg.Worker.WorkerCount}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Initialize Server
	srv := api.NewServer(api.Config{Server: cfg.Server, Version: Version}, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Insights: aggregator,
		Rules:    engine,
		Metrics:  recorder,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fathom is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server so no new batches arrive
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down tracer provider", "error", err)
	}

	slog.Info("fathom shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("FATHOM_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase loads enabled advisory rules into the engine.
// Rules are configured via POST /rules or fathomctl rules seed.
func loadRulesFromDatabase(ctx context.Context, repo domain.SignalRepository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FATHOM  insight fusion and budget recommendations")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /users/{id}/insight        - Aggregate insight for a user")
	fmt.Println("    GET  /users/{id}/recommendation - Budget recommendation")
	fmt.Println("    POST /insights/batch            - Queue insights on the event bus")
	fmt.Println("    GET  /rules                     - List loaded advisory rules")
	fmt.Println("    POST /rules                     - Create an advisory rule")
	fmt.Println("    POST /rules/reload              - Hot-reload rules from database")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println("    GET  /metrics                   - Prometheus metrics")
	fmt.Println()
}
