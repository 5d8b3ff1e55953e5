// Package errors defines the failure taxonomy shared across the pipeline.
// Sentinel errors classify model-gateway failures and fatal run conditions;
// CallError carries the classification alongside the underlying cause.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a missing or invalid configuration value. Nothing is
	// processed when this is raised at startup.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuth marks a rejected credential (401/403). The current request is
	// abandoned; the batch may continue with other posts.
	ErrAuth = errors.New("authentication rejected")

	// ErrQuotaExhausted marks billing or hard-limit exhaustion on the model
	// provider. The entire batch must abort.
	ErrQuotaExhausted = errors.New("model quota exhausted")

	// ErrRateLimited marks a 429 from the model provider.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTransient marks a network failure, timeout, or provider 5xx.
	ErrTransient = errors.New("transient failure")

	// ErrModel marks any other non-retryable model failure. It fails the
	// affected stage, not the batch.
	ErrModel = errors.New("model call failed")

	// ErrEventNotFound is returned by the store and index for an unknown
	// event id.
	ErrEventNotFound = errors.New("event not found")
)

// CallError is a classified model-gateway failure.
type CallError struct {
	Kind   error // one of the sentinels above
	Status int   // HTTP status, 0 if not an HTTP-level failure
	Err    error // underlying cause
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind.Error(), e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Err)
}

// Unwrap exposes the sentinel so errors.Is(err, ErrRateLimited) works on a
// wrapped CallError.
func (e *CallError) Unwrap() error {
	return e.Kind
}

// NewCall builds a classified CallError.
func NewCall(kind error, status int, err error) *CallError {
	return &CallError{Kind: kind, Status: status, Err: err}
}

// IsFatal reports whether err must abort the whole batch rather than just
// the current unit of work.
func IsFatal(err error) bool {
	return errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrConfig)
}

// IsRetryable reports whether the gateway may retry the request that
// produced err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
