// Package metrics exports Prometheus collectors for orders, search, the
// search cache, track list enrichment, the outbox relay and HTTP traffic.
//
// Every method is safe on a nil *Collector, so components can run without
// metrics wired.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"recordshop/internal/infrastructure/storage/postgres"
)

const namespace = "recordshop"

// Collector implements the Metrics interfaces of the domain services and
// infrastructure clients.
type Collector struct {
	orders        *prometheus.CounterVec
	orderQty      *prometheus.CounterVec
	orderDuration *prometheus.HistogramVec

	searchDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec

	enrichment         *prometheus.CounterVec
	enrichmentDuration prometheus.Histogram

	outbox *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg yields a Collector that
// drops every observation.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		return &Collector{}
	}

	c := &Collector{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order attempts by outcome.",
		}, []string{"outcome"}),
		orderQty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_units_total",
			Help:      "Units requested by order outcome.",
		}, []string{"outcome"}),
		orderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_duration_seconds",
			Help:      "Order placement latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Catalog search latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_lookups_total",
			Help:      "Search cache lookups by result.",
		}, []string{"result"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracklist_lookups_total",
			Help:      "MusicBrainz track list lookups by outcome.",
		}, []string{"outcome"}),
		enrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tracklist_lookup_duration_seconds",
			Help:      "MusicBrainz track list lookup latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages handled by event type and result.",
		}, []string{"event_type", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		c.orders, c.orderQty, c.orderDuration,
		c.searchDuration, c.cacheLookups,
		c.enrichment, c.enrichmentDuration,
		c.outbox,
		c.httpRequests, c.httpDuration,
	)
	return c
}

// ObserveOrder records one order attempt.
func (c *Collector) ObserveOrder(outcome string, qty int64, d time.Duration) {
	if c == nil || c.orders == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	c.orders.WithLabelValues(outcome).Inc()
	if qty > 0 {
		c.orderQty.WithLabelValues(outcome).Add(float64(qty))
	}
	c.orderDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveSearch records one search, served from the cache or the store.
func (c *Collector) ObserveSearch(cached bool, d time.Duration) {
	if c == nil || c.searchDuration == nil {
		return
	}
	source := "store"
	if cached {
		source = "cache"
	}
	c.searchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveCache records one search cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	if c == nil || c.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveEnrichment records one track list lookup.
func (c *Collector) ObserveEnrichment(outcome string, d time.Duration) {
	if c == nil || c.enrichment == nil {
		return
	}
	c.enrichment.WithLabelValues(normalizeLabel(outcome)).Inc()
	c.enrichmentDuration.Observe(d.Seconds())
}

// ObserveOutbox records one relayed outbox message.
func (c *Collector) ObserveOutbox(eventType string, ok bool) {
	if c == nil || c.outbox == nil {
		return
	}
	result := "processed"
	if !ok {
		result = "failed"
	}
	c.outbox.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

// ObserveHTTP records one served request. route is the matched route
// template, not the raw path.
func (c *Collector) ObserveHTTP(route, method string, status int, d time.Duration) {
	if c == nil || c.httpRequests == nil {
		return
	}
	route = normalizeLabel(route)
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// PoolStatsSource is implemented by *postgres.Pool.
type PoolStatsSource interface {
	Stats() postgres.PoolStats
}

// RegisterPool exports connection pool gauges read on every scrape.
func RegisterPool(reg prometheus.Registerer, src PoolStatsSource) {
	if reg == nil || src == nil {
		return
	}
	gauge := func(name, help string, read func(postgres.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Stats()) })
	}
	reg.MustRegister(
		gauge("total_conns", "Open connections.", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("acquired_conns", "Connections in use.", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("idle_conns", "Idle connections.", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("max_conns", "Pool size limit.", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
