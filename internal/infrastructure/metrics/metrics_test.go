package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordshop/internal/infrastructure/storage/postgres"
)

func TestCollector_Orders(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveOrder("placed", 2, 10*time.Millisecond)
	c.ObserveOrder("placed", 3, 10*time.Millisecond)
	c.ObserveOrder("insufficient_stock", 9, time.Millisecond)
	c.ObserveOrder("", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.orders.WithLabelValues("placed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.orderQty.WithLabelValues("placed")))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.orderQty.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orders.WithLabelValues("unknown")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.orderDuration))
}

func TestCollector_SearchAndCache(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveSearch(true, time.Millisecond)
	c.ObserveSearch(false, 20*time.Millisecond)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCache(false)

	assert.Equal(t, 2, testutil.CollectAndCount(c.searchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
}

func TestCollector_EnrichmentOutboxHTTP(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveEnrichment("ok", time.Millisecond)
	c.ObserveEnrichment("circuit_open", 0)
	c.ObserveOutbox("order.placed", true)
	c.ObserveOutbox("order.placed", false)
	c.ObserveHTTP("/api/v1/records/:id", "GET", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.enrichment.WithLabelValues("circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outbox.WithLabelValues("order.placed", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/api/v1/records/:id", "GET", "404")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveOrder("placed", 1, time.Second)
		c.ObserveSearch(true, time.Second)
		c.ObserveCache(true)
		c.ObserveEnrichment("ok", time.Second)
		c.ObserveOutbox("x", true)
		c.ObserveHTTP("/", "GET", 200, time.Second)
	})

	unregistered := New(nil)
	assert.NotPanics(t, func() { unregistered.ObserveOrder("placed", 1, time.Second) })
}

type fixedPool struct{ stats postgres.PoolStats }

func (f fixedPool) Stats() postgres.PoolStats { return f.stats }

func TestRegisterPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPool(reg, fixedPool{stats: postgres.PoolStats{TotalConns: 7, AcquiredConns: 2, IdleConns: 5, MaxConns: 25}})

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range mfs {
		got[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"recordshop_db_pool_total_conns":    7,
		"recordshop_db_pool_acquired_conns": 2,
		"recordshop_db_pool_idle_conns":     5,
		"recordshop_db_pool_max_conns":      25,
	}, got)
}
