// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"recordshop/internal/infrastructure/storage/postgres"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats exposes connection pool statistics.
type PoolStats interface {
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db      Pinger
	cache   Pinger
	pool    PoolStats
	version string
}

// NewHealthHandler creates a new health handler. cache and pool may be nil.
func NewHealthHandler(db, cache Pinger, pool PoolStats, version string) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, pool: pool, version: version}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles readiness probe. The search cache is optional, so its
// failure is reported without failing the probe.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["search_cache"] = "degraded: " + err.Error()
		} else {
			checks["search_cache"] = "healthy"
		}
	}

	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "recordshop",
		"version": h.version,
	}
	if h.pool != nil {
		stat := h.pool.Stats()
		body["database"] = map[string]any{
			"total_conns":    stat.TotalConns,
			"acquired_conns": stat.AcquiredConns,
			"idle_conns":     stat.IdleConns,
			"max_conns":      stat.MaxConns,
		}
	}
	c.JSON(http.StatusOK, body)
}
