// Package config loads process configuration from RECORDSHOP_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every key, e.g. RECORDSHOP_DATABASE_URL.
const EnvPrefix = "RECORDSHOP"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Config holds every setting of the server, the worker and the seeder.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
	AutoMigrate    bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// RedisURL is optional; empty disables the search cache.
	RedisURL       string        `envconfig:"REDIS_URL"`
	SearchCacheTTL time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"30s"`

	MusicBrainzURL     string        `envconfig:"MUSICBRAINZ_URL" default:"https://musicbrainz.org/ws/2/release"`
	MusicBrainzTimeout time.Duration `envconfig:"MUSICBRAINZ_TIMEOUT" default:"5s"`
	MusicBrainzRPS     float64       `envconfig:"MUSICBRAINZ_RPS" default:"1"`

	OrderPolicy    string        `envconfig:"ORDER_POLICY" default:"qty >= 1 && qty <= 10000"`
	OrderTxTimeout time.Duration `envconfig:"ORDER_TX_TIMEOUT" default:"5s"`

	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	// OTelEndpoint is optional; empty disables trace export.
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%s_DATABASE_URL is empty", EnvPrefix)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: min %d, max %d", c.DBMinConns, c.DBMaxConns)
	}
	if c.MusicBrainzRPS <= 0 {
		return fmt.Errorf("%s_MUSICBRAINZ_RPS must be positive", EnvPrefix)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("%s_OUTBOX_BATCH_SIZE must be positive", EnvPrefix)
	}
	return nil
}

// IsDev reports whether the process runs in development mode.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.AppEnv, AppEnvDev)
}

// CacheEnabled reports whether a Redis URL is configured.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}
