// Package errors defines the error types returned by generator implementations
// and classifies arbitrary generator failures into domain.FailureKind values
// with retry guidance.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Common generator errors for consistent error handling.
var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidResponse indicates the provider returned a response that could
	// not be decoded into question/answer pairs.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrMaxRetriesExceeded indicates maximum retry attempts exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrCircuitOpen indicates a circuit breaker rejected the call without
	// reaching the provider.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ProviderError captures structured error responses from LLM providers.
// Includes HTTP status codes, provider-specific error codes, and retry timing
// to enable appropriate retry behavior and error diagnosis.
type ProviderError struct {
	Provider   string             `json:"provider"`
	StatusCode int                `json:"status_code"`
	Message    string             `json:"message"`
	Code       string             `json:"code"`
	Kind       domain.FailureKind `json:"kind"`
	RetryAfter int                `json:"retry_after"` // Retry-After header value in seconds
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool { return retryableKind(e.Kind) }

// GetRetryAfter returns the provider's requested wait before the next attempt.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// NewProviderError builds a ProviderError with its kind derived from the
// HTTP status code.
func NewProviderError(provider string, status int, message string, retryAfter int) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		Code:       http.StatusText(status),
		Kind:       kindFromStatus(status),
		RetryAfter: retryAfter,
	}
}

// kindFromStatus maps HTTP status codes to failure kinds.
func kindFromStatus(status int) domain.FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.FailureRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.FailureTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.FailureAuth
	case status >= http.StatusInternalServerError:
		return domain.FailureProvider
	default:
		return domain.FailureInvalidResponse
	}
}

// RateLimitError reports a locally enforced or provider rate limit.
// LocalLimit distinguishes a limit this process enforced from a 429 sent by
// the provider. Neither counts as a provider failure for the circuit breaker.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"` // Seconds to wait before retry
	LocalLimit bool   `json:"local_limit"`
}

// Error returns formatted rate limit error with retry guidance.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// Unwrap lets errors.Is match ErrRateLimitExceeded.
func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// GetRetryAfter returns the wait before the next attempt.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}
