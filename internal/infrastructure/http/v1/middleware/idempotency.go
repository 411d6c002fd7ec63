package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/idempotency"
	"recordshop/pkg/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB
	maxIdempotencyKeyLen    = 255

	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// Idempotency replays the stored response of a request that carries an
// already used Idempotency-Key. Requests without the header pass through.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			_ = c.Error(apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLen))
			c.Abort()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(c.Request.Context(), key, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// CompleteIdempotency stores a successful response for replay when the
// request holds an idempotency key.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := heldKey(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), key, statusCode, contentType, response); err != nil {
		logger.Warn(c.Request.Context(), "idempotency completion failed", "key", key, "error", err)
	}
}

// FailIdempotency stores an error response for replay.
func FailIdempotency(c *gin.Context, statusCode int, response any) {
	key, store, ok := heldKey(c)
	if !ok {
		return
	}
	if err := store.FailKey(c.Request.Context(), key, statusCode, "application/json", response); err != nil {
		logger.Warn(c.Request.Context(), "idempotency failure record failed", "key", key, "error", err)
	}
}

func heldKey(c *gin.Context) (string, idempotency.Store, bool) {
	key, exists := c.Get(ctxIdempotencyKey)
	if !exists {
		return "", nil, false
	}
	raw, exists := c.Get(ctxIdempotencyStore)
	if !exists {
		return "", nil, false
	}
	store, ok := raw.(idempotency.Store)
	if !ok || store == nil {
		return "", nil, false
	}
	return key.(string), store, true
}
