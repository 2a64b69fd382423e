package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrContentBlocked indicates the provider refused the request on
	// content-policy grounds. Surfaces as a pair error with no text.
	ErrContentBlocked = errors.New("content blocked by provider policy")
)

// BackendError represents a failure from a model backend. It records
// the model, the operation, and rate-limit hints when applicable.
type BackendError struct {
	// Model is the identifier of the model the call targeted.
	Model string

	// Operation is the name of the operation that failed.
	Operation string

	// Err is the underlying error.
	Err error

	// RetryAfter indicates how long to wait before retrying, if known.
	RetryAfter *time.Duration
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is transient and the call can
// be retried. Logic errors and policy blocks are not retryable.
func (e *BackendError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewBackendError creates a BackendError with the given details.
func NewBackendError(model, operation string, err error) *BackendError {
	return &BackendError{Model: model, Operation: operation, Err: err}
}

// StoreError represents a failure from the persistence collaborator.
type StoreError struct {
	// Operation is the store operation that failed.
	Operation string

	// Key identifies the record or batch involved.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a StoreError with the given details.
func NewStoreError(operation, key string, err error) *StoreError {
	return &StoreError{Operation: operation, Key: key, Err: err}
}
