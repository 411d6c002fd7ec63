// Package apperror provides the structured error type shared by every layer.
// Domain code returns *AppError; the HTTP error middleware is the only place
// that turns it into a response body.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Codes are part of the public API and must stay stable.
const (
	// Infrastructure errors (5xx)
	CodeInternal     = "INTERNAL_ERROR"
	CodeUpdateFailed = "UPDATE_FAILED"

	// Validation errors (400)
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeOrderPlacementFailed   = "ORDER_PLACEMENT_FAILED"
	CodeIdempotencyConflict    = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyMismatch    = "IDEMPOTENCY_MISMATCH"
)

// AppError is the standard error type of the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (never serialized)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError with the same code.
// It lets callers write errors.Is(err, apperror.ErrNotFound).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Sentinels for errors.Is comparisons. Never return these directly.
var (
	ErrNotFound               = &AppError{Code: CodeNotFound}
	ErrAlreadyExists          = &AppError{Code: CodeAlreadyExists}
	ErrInsufficientStock      = &AppError{Code: CodeInsufficientStock}
	ErrConcurrentModification = &AppError{Code: CodeConcurrentModification}
	ErrInvalidIdentifier      = &AppError{Code: CodeInvalidIdentifier}
	ErrUpdateFailed           = &AppError{Code: CodeUpdateFailed}
	ErrOrderPlacementFailed   = &AppError{Code: CodeOrderPlacementFailed}
	ErrValidation             = &AppError{Code: CodeValidation}
	ErrIdempotencyConflict    = &AppError{Code: CodeIdempotencyConflict}
	ErrIdempotencyMismatch    = &AppError{Code: CodeIdempotencyMismatch}
)

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidIdentifier is returned when an id is not well-formed for the store.
func NewInvalidIdentifier(entity, raw string) *AppError {
	return &AppError{
		Code:       CodeInvalidIdentifier,
		Message:    fmt.Sprintf("invalid %s identifier", entity),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "id": raw},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewAlreadyExists creates a uniqueness violation error (409)
func NewAlreadyExists(entity string, key map[string]any) *AppError {
	return &AppError{
		Code:       CodeAlreadyExists,
		Message:    fmt.Sprintf("%s already exists", entity),
		HTTPStatus: http.StatusConflict,
		Details:    key,
	}
}

// NewInsufficientStock creates a stock shortage error (422)
func NewInsufficientStock(recordID string, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"record_id": recordID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewConcurrentModification creates a lost-guard error (409)
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Please try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewUpdateFailed is returned when a write reported zero affected rows.
func NewUpdateFailed(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeUpdateFailed,
		Message:    fmt.Sprintf("%s was not updated", entity),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewOrderPlacementFailed is the normalized failure of an aborted order
// transaction. reason is exposed; the cause is kept for logging only.
func NewOrderPlacementFailed(reason string, cause error) *AppError {
	return &AppError{
		Code:       CodeOrderPlacementFailed,
		Message:    "Order could not be placed. Please try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"reason": reason, "retryable": true},
		Err:        cause,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyConflict,
		Message:    "Operation already in progress",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused
// with a different request body.
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyMismatch,
		Message:    "Idempotency key reused with a different request",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode checks whether the first AppError in the chain carries code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
