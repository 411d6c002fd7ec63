package records

import (
	"context"

	"recordshop/internal/core/id"
	"recordshop/internal/domain/filter"
)

// Repository is the catalog store.
//
// Implementations read and write through the transaction stored in ctx when
// there is one, and through the pool otherwise.
type Repository interface {
	// Create inserts r. Returns AlreadyExists when the store's unique index
	// on (artist, album, format) rejects it.
	Create(ctx context.Context, r *Record) error

	// GetByID returns NotFound when the record is absent.
	GetByID(ctx context.Context, recordID id.ID) (*Record, error)

	// ExistsByKey reports whether a record with key exists.
	ExistsByKey(ctx context.Context, key Key) (bool, error)

	// Update writes the given columns of r, guarded by r.Version, and bumps
	// the version. Returns UpdateFailed when no row was modified.
	Update(ctx context.Context, r *Record, columns []string) error

	// Search returns one window of the records matching pred, plus the total
	// number of matches.
	Search(ctx context.Context, pred filter.Predicate, sort filter.Sort, limit, skip int) ([]*Record, int64, error)

	// DecrementStock subtracts qty from the record's quantity only if the
	// stored quantity is still >= qty. ok is false when the guard rejected
	// the write (or the row is gone); remaining is the new quantity.
	DecrementStock(ctx context.Context, recordID id.ID, qty int64) (remaining int64, ok bool, err error)
}

// TrackListFetcher resolves an external release id to its track titles.
// It never fails: any lookup problem yields an empty list.
type TrackListFetcher interface {
	FetchTrackList(ctx context.Context, mbid *string) []string
}

// SearchCache caches search pages. Misses and cache faults are
// indistinguishable to the caller.
type SearchCache interface {
	Get(ctx context.Context, f SearchFilter) (*SearchResult, bool)
	Set(ctx context.Context, f SearchFilter, res *SearchResult)
	Invalidate(ctx context.Context)
}

type noopFetcher struct{}

func (noopFetcher) FetchTrackList(context.Context, *string) []string { return []string{} }

type noopCache struct{}

func (noopCache) Get(context.Context, SearchFilter) (*SearchResult, bool) { return nil, false }
func (noopCache) Set(context.Context, SearchFilter, *SearchResult)        {}
func (noopCache) Invalidate(context.Context)                             {}
