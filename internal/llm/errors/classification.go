package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Classify maps a generator error to a failure kind. Typed errors are checked
// first, then sentinels, then message patterns for untyped errors.
func Classify(err error) domain.FailureKind {
	if err == nil {
		return ""
	}

	if kind := classifyTyped(err); kind != "" {
		return kind
	}
	if kind := classifySentinel(err); kind != "" {
		return kind
	}
	return classifyStringPattern(err)
}

// classifyTyped handles errors carrying structured context.
func classifyTyped(err error) domain.FailureKind {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return domain.FailureRateLimit
	}

	var collabErr *domain.CollaboratorError
	if errors.As(err, &collabErr) && collabErr.Kind != "" {
		return collabErr.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.FailureTimeout
		}
		return domain.FailureNetwork
	}

	return ""
}

// classifySentinel handles sentinel errors using errors.Is.
func classifySentinel(err error) domain.FailureKind {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, domain.ErrGeneratorPanic):
		return domain.FailurePanic
	case errors.Is(err, ErrRateLimitExceeded):
		return domain.FailureRateLimit
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrCircuitOpen):
		return domain.FailureProvider
	case errors.Is(err, ErrInvalidResponse):
		return domain.FailureInvalidResponse
	case errors.Is(err, ErrMaxRetriesExceeded):
		return domain.FailureProvider
	}
	return ""
}

// classifyStringPattern performs message matching for untyped errors.
func classifyStringPattern(err error) domain.FailureKind {
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "rate limit"):
		return domain.FailureRateLimit
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return domain.FailureTimeout
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "authentication"):
		return domain.FailureAuth
	case strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection"):
		return domain.FailureNetwork
	default:
		return domain.FailureUnknown
	}
}

// retryableKind reports whether failures of kind are transient.
func retryableKind(kind domain.FailureKind) bool {
	switch kind {
	case domain.FailureTimeout, domain.FailureRateLimit, domain.FailureNetwork, domain.FailureProvider:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is worth another attempt. Cancellation is
// never retryable even though a deadline maps to a timeout kind.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return retryableKind(Classify(err))
}

// RetryAfterProvider is implemented by errors that carry a server-requested
// wait before the next attempt. The retry middleware uses this wait in place
// of its computed backoff.
type RetryAfterProvider interface {
	GetRetryAfter() time.Duration
}

// RetryAfter extracts a requested wait from err, or zero.
func RetryAfter(err error) time.Duration {
	var rap RetryAfterProvider
	if errors.As(err, &rap) {
		return rap.GetRetryAfter()
	}
	return 0
}
