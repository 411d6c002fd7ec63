// Package main is the entry point for the recordshop API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"recordshop/internal/config"
	"recordshop/internal/domain/orders"
	"recordshop/internal/domain/records"
	"recordshop/internal/infrastructure/cache"
	v1 "recordshop/internal/infrastructure/http/v1"
	"recordshop/internal/infrastructure/http/v1/handlers"
	"recordshop/internal/infrastructure/metrics"
	"recordshop/internal/infrastructure/musicbrainz"
	"recordshop/internal/infrastructure/numerator"
	"recordshop/internal/infrastructure/storage/postgres"
	"recordshop/internal/infrastructure/storage/postgres/order_repo"
	"recordshop/internal/infrastructure/storage/postgres/record_repo"
	"recordshop/internal/infrastructure/telemetry"
	"recordshop/pkg/logger"
)

var version = "dev"

func main() {
	// A missing .env is fine; the environment may be set another way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
		Service:     "recordshop-api",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting recordshop server", "version", version, "env", cfg.AppEnv)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "recordshop-api", telemetry.WithVersion(version))
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}

	// --- Database ---
	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(ctx, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalw("failed to run migrations", "error", err)
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.ApplicationName = "recordshop-api"
	poolCfg.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)
	metrics.RegisterPool(registry, pool)

	// --- Search cache (optional) ---
	var (
		searchCache *cache.SearchCache
		cachePinger handlers.Pinger
	)
	if cfg.CacheEnabled() {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warnw("search cache disabled", "error", err)
		} else {
			defer client.Close()
			if searchCache, err = cache.NewSearchCache(client, cfg.SearchCacheTTL, collector); err != nil {
				log.Fatalw("failed to create search cache", "error", err)
			}
			cachePinger = searchCache
			log.Infow("search cache enabled", "ttl", cfg.SearchCacheTTL)
		}
	}

	// --- Domain ---
	auditLog, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit log", "error", err)
	}
	outbox := postgres.NewOutboxPublisher(txManager)

	trackLists := musicbrainz.NewClient(
		musicbrainz.WithBaseURL(cfg.MusicBrainzURL),
		musicbrainz.WithRateLimit(cfg.MusicBrainzRPS),
		musicbrainz.WithHTTPClient(&http.Client{Timeout: cfg.MusicBrainzTimeout}),
		musicbrainz.WithMetrics(collector),
	)

	policy, err := orders.NewPolicy(cfg.OrderPolicy)
	if err != nil {
		log.Fatalw("invalid order policy", "error", err)
	}

	recordRepo := record_repo.NewRecordRepo(txManager)
	recordCfg := records.ServiceConfig{
		Repo:      recordRepo,
		TxManager: txManager,
		Fetcher:   trackLists,
		Events:    outbox,
		Audit:     auditLog,
		Metrics:   collector,
	}

	orderCfg := orders.CoordinatorConfig{
		Stock:     recordRepo,
		Ledger:    order_repo.NewOrderRepo(txManager),
		TxManager: txManager,
		Events:    outbox,
		Numbers:   numerator.New(pool),
		Policy:    policy,
		Metrics:   collector,
		TxTimeout: cfg.OrderTxTimeout,
	}
	if searchCache != nil {
		recordCfg.Cache = searchCache
		orderCfg.Cache = searchCache
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:      log,
		Records:     records.NewService(recordCfg),
		Orders:      orders.NewCoordinator(orderCfg),
		Idempotency: postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL),
		Database:    pool,
		Cache:       cachePinger,
		Pool:        pool,
		Metrics:     collector,
		Gatherer:    registry,
		Version:     version,
		Debug:       cfg.IsDev(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
