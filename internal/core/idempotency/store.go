// Package idempotency defines the contract behind the Idempotency-Key header.
package idempotency

import (
	"context"
	"time"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may sit before another request may
// reclaim it; the first request most likely crashed.
const StaleAfter = time.Minute

// Replay is the cached HTTP response of a finished request.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store keeps idempotency keys and the responses they produced.
type Store interface {
	// AcquireKey returns (nil, nil) when the caller now owns key, a Replay
	// when the operation already succeeded, IdempotencyConflict while another
	// request holds the key and IdempotencyMismatch when key was used for a
	// different request. Keys of failed or expired operations are free.
	AcquireKey(ctx context.Context, key, operation, requestHash string) (*Replay, error)

	// CompleteKey stores a successful response for replay.
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error

	// FailKey records the error response and releases the key so the
	// client may retry.
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

// NormalizeReplay fills defaults for rows written without status or type.
func NormalizeReplay(statusCode int, contentType string, body []byte) *Replay {
	if statusCode == 0 {
		statusCode = 200
	}
	if contentType == "" {
		contentType = "application/json"
	}
	return &Replay{StatusCode: statusCode, ContentType: contentType, Body: body}
}
