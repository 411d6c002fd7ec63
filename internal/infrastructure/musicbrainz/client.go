// Package musicbrainz fetches release track lists from the MusicBrainz web
// service. Lookups never fail the caller: any problem is logged and yields
// an empty track list.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"recordshop/internal/domain/records"
	"recordshop/pkg/logger"
)

const (
	DefaultBaseURL = "https://musicbrainz.org/ws/2/release"
	defaultTimeout = 5 * time.Second
	userAgent      = "recordshop/1.0 (+https://github.com/recordshop)"

	// maxBodyBytes caps the release document; large box sets stay well below it.
	maxBodyBytes int64 = 4 << 20
)

// Outcome labels reported to Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeSkipped  = "skipped"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeOpen     = "circuit_open"
)

// Metrics receives one observation per lookup. A nil Metrics is allowed.
type Metrics interface {
	ObserveEnrichment(outcome string, d time.Duration)
}

// Client implements records.TrackListFetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    Metrics
}

var _ records.TrackListFetcher = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the release endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRateLimit limits outgoing requests to rps per second. MusicBrainz
// asks anonymous clients for at most one.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMetrics sets the lookup observer.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a MusicBrainz client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "musicbrainz",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing release is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < http.StatusInternalServerError && se.code != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Default().Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("musicbrainz responded %d", e.code)
}

type release struct {
	Media []struct {
		Tracks []struct {
			Title string `json:"title"`
		} `json:"tracks"`
	} `json:"media"`
}

// FetchTrackList returns the track titles of release mbid in medium order.
// A nil or blank mbid, and any failure, yields an empty list.
func (c *Client) FetchTrackList(ctx context.Context, mbid *string) []string {
	started := time.Now()
	if mbid == nil || strings.TrimSpace(*mbid) == "" {
		c.observe(OutcomeSkipped, started)
		return []string{}
	}
	id := strings.TrimSpace(*mbid)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, id)
	})
	if err != nil {
		outcome := OutcomeError
		var se *statusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = OutcomeOpen
		case errors.As(err, &se) && se.code == http.StatusNotFound:
			outcome = OutcomeNotFound
		}
		logger.Warn(ctx, "track list lookup failed", "mbid", id, "outcome", outcome, "error", err)
		c.observe(outcome, started)
		return []string{}
	}

	c.observe(OutcomeOK, started)
	return out.([]string)
}

func (c *Client) fetch(ctx context.Context, mbid string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + "/" + url.PathEscape(mbid) + "?fmt=json&inc=recordings"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode}
	}

	var rel release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}

	titles := []string{}
	for _, medium := range rel.Media {
		for _, track := range medium.Tracks {
			if track.Title != "" {
				titles = append(titles, track.Title)
			}
		}
	}
	return titles, nil
}

func (c *Client) observe(outcome string, started time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveEnrichment(outcome, time.Since(started))
	}
}
