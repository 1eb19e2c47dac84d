// Package main is the entry point for the bounty platform API server.
// It serves researcher, company and triage accounts, bounty programs, and
// the vulnerability report lifecycle: submission, review transitions and
// the earnings and bounty bookkeeping they drive.
//
// Storage is PostgreSQL when DATABASE_URL is set and an in-memory store
// otherwise. Redis, when configured, caches leaderboards.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/cache"
	"github.com/bountyboard/bounty-server/internal/config"
	"github.com/bountyboard/bounty-server/internal/database"
	"github.com/bountyboard/bounty-server/internal/handlers"
	"github.com/bountyboard/bounty-server/internal/metrics"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/services"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	sugar.Infow("Starting bounty server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
	)

	ctx := context.Background()

	store, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// Metrics registry with the Go runtime collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := services.Deps{Store: store, Metrics: metrics.New(registry)}
	var cachePing handlers.Pinger

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()

		lb := cache.NewLeaderboard(client, cfg.LeaderboardCacheTTL)
		deps.Cache = lb
		cachePing = lb
	}

	a := newApp(cfg, logger, deps, cachePing, registry)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

// openStore connects to PostgreSQL, applying migrations when enabled, or
// falls back to the in-memory store outside production
func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (repository.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return repository.NewMemory(), nil
	}

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	db, err := database.NewPool(ctx, cfg.DatabaseURL, database.DefaultPoolOptions)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgres(db), nil
}
