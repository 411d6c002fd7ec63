// Package main is the entry point for the recordshop background worker.
// It relays the transactional outbox and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recordshop/internal/config"
	"recordshop/internal/infrastructure/cache"
	"recordshop/internal/infrastructure/metrics"
	"recordshop/internal/infrastructure/outbox"
	"recordshop/internal/infrastructure/storage/postgres"
	"recordshop/internal/infrastructure/telemetry"
	"recordshop/pkg/logger"
)

const (
	cleanupInterval = time.Hour
	metricsAddr     = ":9091"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
		Service:     "recordshop-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting recordshop worker")

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "recordshop-worker")
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.ApplicationName = "recordshop-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	metrics.RegisterPool(registry, pool)

	var invalidator outbox.Invalidator
	if cfg.CacheEnabled() {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warnw("search cache invalidation disabled", "error", err)
		} else {
			defer client.Close()
			searchCache, err := cache.NewSearchCache(client, cfg.SearchCacheTTL, collector)
			if err != nil {
				log.Fatalw("failed to create search cache", "error", err)
			}
			invalidator = searchCache
		}
	}

	worker := &Worker{
		relay:        postgres.NewOutboxRelay(txManager, cfg.OutboxBatchSize, outbox.NewHandler(invalidator, collector, log)),
		idempotency:  postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL),
		pool:         pool,
		pollInterval: cfg.OutboxPollInterval,
		log:          log.WithComponent("worker"),
	}

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}

	log.Info("worker stopped")
}

// Relay delivers outbox messages.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// KeyExpirer removes expired idempotency keys.
type KeyExpirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StatsLogger reports connection pool usage.
type StatsLogger interface {
	LogStats(ctx context.Context)
}

// Worker polls the outbox and runs periodic cleanup.
type Worker struct {
	relay        Relay
	idempotency  KeyExpirer
	pool         StatsLogger // optional
	pollInterval time.Duration
	log          *logger.Logger
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// drainOutbox keeps relaying while full batches come back.
func (w *Worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move to DLQ failed", "error", err)
	} else if moved > 0 {
		w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
	}

	if removed, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
	} else if removed > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", removed)
	}

	if w.pool != nil {
		w.pool.LogStats(ctx)
	}
}
