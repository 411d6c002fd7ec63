// Package numerator defines human readable sequential numbering.
// The Postgres implementation lives in infrastructure/numerator.
package numerator

import (
	"context"
	"time"
)

// Generator hands out sequential numbers.
//
// Calls run outside business transactions: a number taken by an attempt
// that later aborts is not reused, so sequences may have gaps.
type Generator interface {
	// GetNextNumber generates the next number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., ORD-2026-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber sets the current value of a sequence (data migrations).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
