package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-evalset/internal/domain"
)

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      domain.FailureKind
		retryable bool
	}{
		{"nil", nil, "", false},
		{"provider 429", NewProviderError("openai", http.StatusTooManyRequests, "slow down", 2), domain.FailureRateLimit, true},
		{"provider 503", NewProviderError("openai", http.StatusServiceUnavailable, "down", 0), domain.FailureProvider, true},
		{"provider 401", NewProviderError("openai", http.StatusUnauthorized, "bad key", 0), domain.FailureAuth, false},
		{"provider 400", NewProviderError("openai", http.StatusBadRequest, "bad body", 0), domain.FailureInvalidResponse, false},
		{"wrapped rate limit", fmt.Errorf("call: %w", &RateLimitError{Provider: "local"}), domain.FailureRateLimit, true},
		{"invalid response", fmt.Errorf("decode: %w", ErrInvalidResponse), domain.FailureInvalidResponse, false},
		{"circuit open", fmt.Errorf("breaker: %w", ErrCircuitOpen), domain.FailureProvider, true},
		{"panic", fmt.Errorf("%w: boom", domain.ErrGeneratorPanic), domain.FailurePanic, false},
		{"cancelled", context.Canceled, domain.FailureCancelled, false},
		{"deadline", context.DeadlineExceeded, domain.FailureTimeout, true},
		{"net timeout", timeoutNetErr{}, domain.FailureTimeout, true},
		{"message timeout", errors.New("upstream timeout"), domain.FailureTimeout, true},
		{"message connection", errors.New("connection reset by peer"), domain.FailureNetwork, true},
		{"unknown", errors.New("something odd"), domain.FailureUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestCollaboratorErrorKindIsPreserved(t *testing.T) {
	err := &domain.CollaboratorError{SourceID: "A", Kind: domain.FailureInvalidResponse, Err: errors.New("x")}
	assert.Equal(t, domain.FailureInvalidResponse, Classify(err))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, RetryAfter(NewProviderError("openai", http.StatusTooManyRequests, "", 3)))
	assert.Equal(t, time.Second, RetryAfter(fmt.Errorf("wrapped: %w", &RateLimitError{RetryAfter: 1})))
	assert.Zero(t, RetryAfter(errors.New("plain")))
}

func TestRateLimitErrorMatchesSentinel(t *testing.T) {
	err := &RateLimitError{Provider: "local", RetryAfter: 1, LocalLimit: true}
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "retry after 1 seconds")
}
