// Command api is the event import API server. It serves interactive
// import runs and occasion summaries, and runs the cron imports and the
// expiration sweep in the background.
//
// Usage:
//
//	event-importer-api
//	API_PORT=8080 PROVIDERS_FILE=providers.yaml event-importer-api

// @title Event Importer API
// @version 1.0.0
// @description Imports events, locations and contacts from CBIS, XCAP, TransTicket and ArcGIS, reconciles them against stored records and manages their occasions.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/eventhub/event-importer/internal/api"
	"github.com/eventhub/event-importer/internal/api/handler"
	"github.com/eventhub/event-importer/internal/cache"
	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/db"
	"github.com/eventhub/event-importer/internal/importer"
	"github.com/eventhub/event-importer/internal/maintenance"
	"github.com/eventhub/event-importer/internal/metrics"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/runs"
	"github.com/eventhub/event-importer/internal/store"

	_ "github.com/eventhub/event-importer/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewImportMetrics(registry)

	// Importer and stores
	occasions := occasion.NewStore(pool, cfg.Location)
	im := importer.FromConfig(cfg, pool, m, logger)

	// Interactive run guard: Redis when configured, in-process otherwise
	var guard runs.Guard = runs.NewMemoryGuard()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		guard = runs.NewRedisGuard(rdb, "eventimport:")
		logger.Info("Run guard using Redis")
	}
	runner := runs.NewRunner(im, guard, runs.NewRegistry(cfg.RunStatusTTL), cfg.RunLockTTL, logger)

	// Start maintenance tickers (cron imports, expiration sweep)
	var cronProviders []string
	for _, name := range config.ProviderNames {
		if pc, ok := cfg.Providers[name]; ok && pc.Cron {
			cronProviders = append(cronProviders, name)
		}
	}
	invalidateSummary := func(context.Context, string) error {
		appCache.Invalidate(handler.OccasionSummaryKey)
		return nil
	}
	sweeper := maintenance.NewSweeper(occasions, store.New(pool), m, logger)
	go maintenance.Start(ctx, im, cronProviders, sweeper, maintenance.Config{
		ImportInterval: cfg.ImportInterval,
		SweepInterval:  cfg.SweepInterval,
		Location:       cfg.Location,
		Hooks:          []maintenance.Hook{invalidateSummary},
	}, logger)

	// Create router
	h := handler.New(pool, appCache, runner, occasions, cfg.Providers, logger)
	router := api.NewRouter(h, registry, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Event Importer API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
