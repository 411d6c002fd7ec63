package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recordshop/internal/core/idempotency"
	"recordshop/internal/infrastructure/http/v1/dto"
	"recordshop/internal/infrastructure/http/v1/handlers"
	"recordshop/internal/infrastructure/http/v1/middleware"
	"recordshop/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	Records handlers.RecordService
	Orders  handlers.OrderService

	// Idempotency backs the Idempotency-Key header on POST /orders.
	// Nil disables the header.
	Idempotency idempotency.Store

	// Database is pinged by /health/ready. Cache is optional.
	Database handlers.Pinger
	Cache    handlers.Pinger
	Pool     handlers.PoolStats

	// Metrics records per-request observations; Gatherer is served on
	// /metrics. Both may be nil.
	Metrics  middleware.HTTPObserver
	Gatherer prometheus.Gatherer

	Version string
	Debug   bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	dto.RegisterValidators()

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// Order matters: the error handler must be innermost so the logger and
	// metrics see the final status.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics(cfg.Metrics))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Database, cfg.Cache, cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	baseHandler := handlers.NewBaseHandler()
	api := router.Group("/api/v1")
	{
		RegisterRecordRoutes(api.Group("/records"), handlers.NewRecordHandler(baseHandler, cfg.Records))

		var placement []gin.HandlerFunc
		if cfg.Idempotency != nil {
			placement = append(placement, middleware.Idempotency(cfg.Idempotency))
		}
		RegisterOrderRoutes(api.Group("/orders"), handlers.NewOrderHandler(baseHandler, cfg.Orders), placement...)
	}

	return router
}
