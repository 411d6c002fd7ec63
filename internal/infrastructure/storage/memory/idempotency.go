package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/idempotency"
)

type idempotencyEntry struct {
	operation   string
	requestHash string
	status      idempotency.Status
	statusCode  int
	contentType string
	body        []byte
	updatedAt   time.Time
	expiresAt   time.Time
}

// IdempotencyStore keeps idempotency keys in memory. It follows the
// sys_idempotency semantics of the Postgres store.
type IdempotencyStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]*idempotencyEntry
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates an empty store whose keys live for ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		ttl:  ttl,
		now:  time.Now,
		keys: make(map[string]*idempotencyEntry),
	}
}

// AcquireKey implements idempotency.Store.
func (s *IdempotencyStore) AcquireKey(_ context.Context, key, operation, requestHash string) (*idempotency.Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.keys[key]
	if !ok || e.status == idempotency.StatusFailed || e.expiresAt.Before(now) {
		s.keys[key] = &idempotencyEntry{
			operation:   operation,
			requestHash: requestHash,
			status:      idempotency.StatusPending,
			updatedAt:   now,
			expiresAt:   now.Add(s.ttl),
		}
		return nil, nil
	}

	if e.operation != operation || e.requestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", e.operation).
			WithDetail("request_operation", operation)
	}

	if e.status == idempotency.StatusSuccess {
		return idempotency.NormalizeReplay(e.statusCode, e.contentType, e.body), nil
	}

	if now.Sub(e.updatedAt) > idempotency.StaleAfter {
		e.updatedAt = now
		return nil, nil
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

// CompleteKey implements idempotency.Store.
func (s *IdempotencyStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(key, idempotency.StatusSuccess, statusCode, contentType, response)
}

// FailKey implements idempotency.Store.
func (s *IdempotencyStore) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(key, idempotency.StatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		body = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.keys[key]
	if !ok || e.status != idempotency.StatusPending {
		return nil
	}
	e.status = status
	e.statusCode = statusCode
	e.contentType = contentType
	e.body = body
	e.updatedAt = s.now()
	return nil
}
