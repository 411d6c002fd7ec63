package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObserveEnrichment(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func strPtr(s string) *string { return &s }

const wallRelease = `{
	"id": "b1",
	"media": [
		{"position": 1, "tracks": [{"title": "In the Flesh?"}, {"title": "The Thin Ice"}]},
		{"position": 2, "tracks": [{"title": "Hey You"}]}
	]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recordingMetrics) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m := &recordingMetrics{}
	return NewClient(WithBaseURL(srv.URL+"/ws/2/release/"), WithRateLimit(1000), WithMetrics(m)), m
}

func TestFetchTrackList(t *testing.T) {
	var gotPath, gotQuery, gotAgent string
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAgent = r.URL.Path, r.URL.RawQuery, r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wallRelease))
	})

	tracks := c.FetchTrackList(context.Background(), strPtr(" b1 "))

	assert.Equal(t, []string{"In the Flesh?", "The Thin Ice", "Hey You"}, tracks)
	assert.Equal(t, "/ws/2/release/b1", gotPath)
	assert.Equal(t, "fmt=json&inc=recordings", gotQuery)
	assert.Contains(t, gotAgent, "recordshop")
	assert.Equal(t, []string{OutcomeOK}, m.outcomes)
}

func TestFetchTrackList_NoMBID(t *testing.T) {
	var calls atomic.Int32
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	assert.Equal(t, []string{}, c.FetchTrackList(context.Background(), nil))
	assert.Equal(t, []string{}, c.FetchTrackList(context.Background(), strPtr("  ")))
	assert.Zero(t, calls.Load())
	assert.Equal(t, []string{OutcomeSkipped, OutcomeSkipped}, m.outcomes)
}

func TestFetchTrackList_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		outcome string
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			outcome: OutcomeNotFound,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			outcome: OutcomeError,
		},
		{
			name:    "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{not json")) },
			outcome: OutcomeError,
		},
		{
			name:    "no media",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"id":"x"}`)) },
			outcome: OutcomeOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestClient(t, tt.handler)
			got := c.FetchTrackList(context.Background(), strPtr("x"))
			assert.NotNil(t, got)
			assert.Empty(t, got)
			assert.Equal(t, []string{tt.outcome}, m.outcomes)
		})
	}
}

func TestFetchTrackList_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 7; i++ {
		c.FetchTrackList(context.Background(), strPtr("x"))
	}

	assert.Equal(t, int32(5), calls.Load())
	require.Len(t, m.outcomes, 7)
	assert.Equal(t, OutcomeOpen, m.outcomes[6])
}

func TestFetchTrackList_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 8; i++ {
		c.FetchTrackList(context.Background(), strPtr("x"))
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestFetchTrackList_CancelledContext(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wallRelease))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, c.FetchTrackList(ctx, strPtr("b1")))
	assert.Equal(t, []string{OutcomeError}, m.outcomes)
}
