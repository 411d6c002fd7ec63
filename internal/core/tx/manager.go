// Package tx defines the transaction scope used by domain services.
// Implementations live in infrastructure/storage.
package tx

import (
	"context"
)

// Manager runs a function inside one transactional scope.
//
// If fn returns an error (or panics) every write made through ctx is rolled
// back; otherwise the scope is committed. Nested calls reuse the scope already
// stored in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
