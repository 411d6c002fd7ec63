// Package cache provides the Redis-backed search page cache.
//
// Entries are keyed by a generation counter plus a digest of the normalized
// search filter. Invalidation bumps the generation, so stale pages are never
// read again and simply expire with their TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"recordshop/internal/domain/orders"
	"recordshop/internal/domain/records"
	"recordshop/pkg/logger"
)

const (
	keyNamespace     = "rs"
	searchPrefix     = "search"
	generationSuffix = "gen"

	DefaultTTL = 30 * time.Second

	// compressThreshold is the payload size above which pages are zstd-compressed.
	compressThreshold = 4 << 10
)

// Payload markers stored in the first byte of every entry.
const (
	encodingPlain byte = 'p'
	encodingZstd  byte = 'z'
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Incr(context.Context, string) *redis.IntCmd
}

// Metrics receives one observation per lookup. A nil Metrics is allowed.
type Metrics interface {
	ObserveCache(hit bool)
}

// SearchCache implements records.SearchCache on Redis.
type SearchCache struct {
	store   cmdable
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	metrics Metrics
}

var (
	_ records.SearchCache     = (*SearchCache)(nil)
	_ orders.CacheInvalidator = (*SearchCache)(nil)
)

// NewClient parses a redis:// URL and verifies connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewSearchCache wraps a Redis client. A non-positive ttl uses DefaultTTL.
func NewSearchCache(client *redis.Client, ttl time.Duration, metrics Metrics) (*SearchCache, error) {
	return newSearchCache(client, ttl, metrics)
}

func newSearchCache(store cmdable, ttl time.Duration, metrics Metrics) (*SearchCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &SearchCache{
		store:   store,
		ttl:     ttl,
		encoder: encoder,
		decoder: decoder,
		metrics: metrics,
	}, nil
}

// Ping checks the Redis connection for readiness probes.
func (c *SearchCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

// Get returns the cached page for f. Any fault counts as a miss.
func (c *SearchCache) Get(ctx context.Context, f records.SearchFilter) (*records.SearchResult, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		logger.Warn(ctx, "search cache unavailable", "error", err)
		c.observe(false)
		return nil, false
	}

	raw, err := c.store.Get(ctx, c.entryKey(gen, f)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "search cache read failed", "error", err)
		}
		c.observe(false)
		return nil, false
	}

	res, err := c.decode(raw)
	if err != nil {
		logger.Warn(ctx, "search cache entry corrupt", "error", err)
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return res, true
}

// Set stores res under the current generation.
func (c *SearchCache) Set(ctx context.Context, f records.SearchFilter, res *records.SearchResult) {
	if res == nil {
		return
	}
	gen, err := c.generation(ctx)
	if err != nil {
		logger.Warn(ctx, "search cache unavailable", "error", err)
		return
	}
	payload, err := c.encode(res)
	if err != nil {
		logger.Warn(ctx, "search cache encode failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, c.entryKey(gen, f), payload, c.ttl).Err(); err != nil {
		logger.Warn(ctx, "search cache write failed", "error", err)
	}
}

// Invalidate makes every cached page unreachable.
func (c *SearchCache) Invalidate(ctx context.Context) {
	if err := c.store.Incr(ctx, c.generationKey()).Err(); err != nil {
		logger.Warn(ctx, "search cache invalidation failed", "error", err)
	}
}

func (c *SearchCache) generation(ctx context.Context) (int64, error) {
	val, err := c.store.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %q: %w", val, err)
	}
	return gen, nil
}

func (c *SearchCache) encode(res *records.SearchResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	if len(data) > compressThreshold {
		return append([]byte{encodingZstd}, c.encoder.EncodeAll(data, nil)...), nil
	}
	return append([]byte{encodingPlain}, data...), nil
}

func (c *SearchCache) decode(raw []byte) (*records.SearchResult, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty entry")
	}
	data := raw[1:]
	switch raw[0] {
	case encodingPlain:
	case encodingZstd:
		var err error
		if data, err = c.decoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown encoding %q", raw[0])
	}

	var res records.SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if res.Records == nil {
		res.Records = []*records.Record{}
	}
	return &res, nil
}

func (c *SearchCache) observe(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCache(hit)
	}
}

func (c *SearchCache) generationKey() string {
	return buildKey(searchPrefix, generationSuffix)
}

func (c *SearchCache) entryKey(gen int64, f records.SearchFilter) string {
	return buildKey(searchPrefix, strconv.FormatInt(gen, 10), FilterDigest(f))
}

// FilterDigest returns a stable digest of the normalized filter. Filters
// that produce the same query share a digest.
func FilterDigest(f records.SearchFilter) string {
	canonical := strings.Join([]string{
		"q=" + normalize(f.Query),
		"artist=" + normalize(f.Artist),
		"album=" + normalize(f.Album),
		"format=" + string(f.Format),
		"category=" + string(f.Category),
		"page=" + strconv.Itoa(f.Page),
		"limit=" + strconv.Itoa(f.Limit),
	}, "&")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildKey(parts ...string) string {
	filtered := make([]string, 0, len(parts)+1)
	filtered = append(filtered, keyNamespace)
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return strings.Join(filtered, ":")
}
