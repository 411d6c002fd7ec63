package numerator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockGenerator is a Generator for unit tests.
type MockGenerator struct {
	GetNextNumberFunc func(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)
	SetNextNumberFunc func(ctx context.Context, cfg Config, period time.Time, value int64) error

	counter atomic.Int64
}

// GetNextNumber implements Generator. Without a func it returns
// PREFIX-YEAR-NNNNN from an in-memory counter.
func (m *MockGenerator) GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if m.GetNextNumberFunc != nil {
		return m.GetNextNumberFunc(ctx, cfg, opts, period)
	}
	return fmt.Sprintf("%s-%d-%05d", cfg.Prefix, period.Year(), m.counter.Add(1)), nil
}

// SetNextNumber implements Generator.
func (m *MockGenerator) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	if m.SetNextNumberFunc != nil {
		return m.SetNextNumberFunc(ctx, cfg, period, value)
	}
	m.counter.Store(value)
	return nil
}

var _ Generator = (*MockGenerator)(nil)
