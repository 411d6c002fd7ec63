package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/idempotency"
)

// IdempotencyRecord stores the result of an idempotent operation.
type IdempotencyRecord struct {
	Key         string             `db:"idempotency_key"`
	Operation   string             `db:"operation"`
	Status      idempotency.Status `db:"status"`
	RequestHash string             `db:"request_hash"` // SHA256 of request body
	Response    []byte             `db:"response"`     // Cached response
	StatusCode  int                `db:"response_status"`
	ContentType string             `db:"response_content_type"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

// IdempotencyStore manages idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		txManager: txManager,
		ttl:       ttl,
	}
}

// AcquireKey implements idempotency.Store.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, operation, requestHash string) (*idempotency.Replay, error) {
	now := time.Now().UTC()
	q := s.txManager.GetQuerier(ctx)

	tag, err := q.Exec(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, operation, idempotency.StatusPending, requestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var record IdempotencyRecord
	err = q.QueryRow(ctx, `
		SELECT idempotency_key, operation, status, request_hash,
		       COALESCE(response, ''::bytea), COALESCE(response_status, 0), COALESCE(response_content_type, ''),
		       created_at, updated_at, expires_at
		FROM sys_idempotency
		WHERE idempotency_key = $1
	`, key).Scan(
		&record.Key, &record.Operation, &record.Status, &record.RequestHash,
		&record.Response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Expired and cleaned up between the two statements; let the client retry.
		return nil, apperror.NewIdempotencyConflict(key)
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	// A failed or expired key is free again, for any request.
	if record.Status == idempotency.StatusFailed || record.ExpiresAt.Before(now) {
		tag, err := q.Exec(ctx, `
			UPDATE sys_idempotency
			SET operation = $1, status = $2, request_hash = $3,
			    response = NULL, response_status = NULL, response_content_type = NULL,
			    updated_at = $4, expires_at = $5
			WHERE idempotency_key = $6 AND updated_at = $7
		`, operation, idempotency.StatusPending, requestHash, now, now.Add(s.ttl), key, record.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reacquire idempotency key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}

	if record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation)
	}

	switch record.Status {
	case idempotency.StatusSuccess:
		return idempotency.NormalizeReplay(record.StatusCode, record.ContentType, record.Response), nil

	case idempotency.StatusPending:
		// Reclaim the key only if nobody touched it for StaleAfter; the
		// conditional UPDATE lets exactly one reclaimer win.
		tag, err := q.Exec(ctx, `
			UPDATE sys_idempotency
			SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at < $4
		`, now, key, idempotency.StatusPending, now.Add(-idempotency.StaleAfter))
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}

	return nil, nil
}

// CompleteKey implements idempotency.Store.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, response)
}

// FailKey implements idempotency.Store.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	var responseBytes []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			// Keep the key consistent with a minimal body.
			b, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		responseBytes = b
	}

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6 AND status = $7
	`, status, responseBytes, statusCode, contentType, time.Now().UTC(), key, idempotency.StatusPending)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}
