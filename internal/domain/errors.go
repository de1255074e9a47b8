package domain

import "errors"

// Error taxonomy for the email delivery engine (see propagation policy:
// adapter errors never reach the producer — Enqueue returns once the row
// is durable; everything below is observed through email_logs/DLQ/health).
var (
	// ErrInvalidArgument: missing/malformed enqueue fields. Not retryable.
	ErrInvalidArgument = errors.New("invalid_argument")

	// ErrSuppressed: recipient is on the suppression list. Not retryable.
	ErrSuppressed = errors.New("suppressed")

	// ErrNoProviderAvailable: all providers unconfigured/open/exhausted/
	// rate-limited. Retryable, scheduled with backoff.
	ErrNoProviderAvailable = errors.New("no_provider_available")

	// ErrTransientProvider: timeout, network error, HTTP 429/5xx, or a
	// SigV4 signing failure. Retryable.
	ErrTransientProvider = errors.New("transient_provider_error")

	// ErrPermanentProvider: HTTP 4xx with bounce/invalid-recipient codes.
	// Not retryable; recipient is suppressed and the row moves to DLQ.
	ErrPermanentProvider = errors.New("permanent_provider_error")

	// ErrBreakerOpen: provider circuit is open. Treated as
	// ErrNoProviderAvailable for routing purposes.
	ErrBreakerOpen = errors.New("breaker_open")

	// ErrRateLimited: enqueue-side per-recipient request gating tripped
	// (spec §4.4's "per-recipient request gating"). Not retryable by the
	// caller as-is; the caller may retry after the gating window elapses.
	ErrRateLimited = errors.New("rate_limited")
)

// ProviderError wraps an upstream failure with its taxonomy classification
// so callers can use errors.Is against the sentinels above while still
// carrying the original message for email_logs.last_error.
type ProviderError struct {
	Kind    error
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.Kind }

// NewTransientError builds a ProviderError classified as transient.
func NewTransientError(msg string) *ProviderError {
	return &ProviderError{Kind: ErrTransientProvider, Message: msg}
}

// NewPermanentError builds a ProviderError classified as permanent.
func NewPermanentError(msg string) *ProviderError {
	return &ProviderError{Kind: ErrPermanentProvider, Message: msg}
}

// IsPermanent reports whether err is (or wraps) a permanent provider failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentProvider)
}

// IsTransient reports whether err is (or wraps) a transient provider failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientProvider)
}

// Truncate caps an error string at n bytes, matching the §4.5 requirement
// that ProviderHealthRow.last_error be bounded (truncate(err, 500)).
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
