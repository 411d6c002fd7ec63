package memory

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordshop/internal/core/apperror"
)

func TestIdempotencyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(time.Hour)

	replay, err := s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	assert.ErrorIs(t, err, apperror.ErrIdempotencyConflict)

	require.NoError(t, s.CompleteKey(ctx, "k1", http.StatusCreated, "application/json", map[string]string{"id": "o1"}))

	replay, err = s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.JSONEq(t, `{"id":"o1"}`, string(replay.Body))

	_, err = s.AcquireKey(ctx, "k1", "POST /orders", "h2")
	assert.ErrorIs(t, err, apperror.ErrIdempotencyMismatch)
}

func TestIdempotencyStore_FailedKeyIsReleased(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(time.Hour)

	_, err := s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	require.NoError(t, err)
	require.NoError(t, s.FailKey(ctx, "k1", http.StatusUnprocessableEntity, "application/json", map[string]string{"code": "INSUFFICIENT_STOCK"}))

	replay, err := s.AcquireKey(ctx, "k1", "POST /orders", "h2")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestIdempotencyStore_StalePendingIsReclaimed(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	replay, err := s.AcquireKey(ctx, "k1", "POST /orders", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)
}
