package retry_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
	"github.com/ahrav/go-evalset/internal/llm/retry"
)

var item = domain.CorpusItem{ID: "r1", Fields: map[string]string{"review": "ok"}}

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:     attempts,
		MaxElapsedTime:  5 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

// scripted returns each error in turn, then succeeds.
func scripted(calls *atomic.Int32, errs ...error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, domain.CorpusItem, domain.GenerationParams) ([]domain.GeneratedPair, error) {
		n := int(calls.Add(1))
		if n <= len(errs) {
			return nil, errs[n-1]
		}
		return []domain.GeneratedPair{{Question: "q", Answer: "a"}}, nil
	})
}

func serverError() error {
	return llmerrors.NewProviderError("test", http.StatusInternalServerError, "boom", 0)
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*retry.Config)
	}{
		{"zero attempts", func(c *retry.Config) { c.MaxAttempts = 0 }},
		{"zero initial interval", func(c *retry.Config) { c.InitialInterval = 0 }},
		{"max below initial", func(c *retry.Config) { c.MaxInterval = c.InitialInterval / 2 }},
		{"shrinking multiplier", func(c *retry.Config) { c.Multiplier = 0.5 }},
		{"negative elapsed", func(c *retry.Config) { c.MaxElapsedTime = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := retry.DefaultConfig()
			tt.mutate(&cfg)
			_, err := retry.New(cfg)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}

	_, err := retry.New(retry.DefaultConfig())
	assert.NoError(t, err)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	m, err := retry.New(fastConfig(3))
	require.NoError(t, err)

	pairs, err := m.Wrap(scripted(&calls, serverError(), context.DeadlineExceeded)).
		Generate(context.Background(), item, domain.DefaultGenerationParams())
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
	assert.EqualValues(t, 3, calls.Load())

	stats := m.Stats()
	assert.EqualValues(t, 3, stats.TotalAttempts)
	assert.EqualValues(t, 1, stats.SuccessfulRetries)
	assert.InDelta(t, 3.0, stats.AverageAttempts, 1e-9)
	assert.Positive(t, stats.MaxBackoff)
}

func TestRetry_MaxAttempts(t *testing.T) {
	for _, attempts := range []int{1, 3, 5} {
		var calls atomic.Int32
		failing := llm.GeneratorFunc(func(context.Context, domain.CorpusItem, domain.GenerationParams) ([]domain.GeneratedPair, error) {
			calls.Add(1)
			return nil, serverError()
		})

		m, err := retry.New(fastConfig(attempts))
		require.NoError(t, err)

		_, err = m.Wrap(failing).Generate(context.Background(), item, domain.DefaultGenerationParams())
		assert.ErrorIs(t, err, llmerrors.ErrMaxRetriesExceeded)
		assert.Equal(t, domain.FailureProvider, llmerrors.Classify(err), "kind of the last failure survives wrapping")
		assert.EqualValues(t, attempts, calls.Load())
		assert.EqualValues(t, 1, m.Stats().FailedRetries)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid response", llmerrors.ErrInvalidResponse},
		{"authentication", llmerrors.NewProviderError("test", http.StatusUnauthorized, "bad key", 0)},
		{"cancelled", context.Canceled},
		{"unknown", errors.New("something odd")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			m, err := retry.New(fastConfig(5))
			require.NoError(t, err)

			_, err = m.Wrap(scripted(&calls, tt.err)).Generate(context.Background(), item, domain.DefaultGenerationParams())
			assert.ErrorIs(t, err, tt.err)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	cfg := fastConfig(5)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour
	cfg.MaxElapsedTime = 0
	m, err := retry.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err = m.Wrap(scripted(&calls, serverError(), serverError())).Generate(ctx, item, domain.DefaultGenerationParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	m, err := retry.New(fastConfig(3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Wrap(scripted(&calls)).Generate(ctx, item, domain.DefaultGenerationParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestRetry_RetryAfterBeyondElapsedBudget(t *testing.T) {
	var calls atomic.Int32
	cfg := fastConfig(5)
	cfg.MaxElapsedTime = 100 * time.Millisecond
	m, err := retry.New(cfg)
	require.NoError(t, err)

	limited := &llmerrors.RateLimitError{Provider: "test", RetryAfter: 30}
	_, err = m.Wrap(scripted(&calls, limited)).Generate(context.Background(), item, domain.DefaultGenerationParams())
	assert.ErrorIs(t, err, llmerrors.ErrRateLimitExceeded)
	assert.EqualValues(t, 1, calls.Load(), "a 30s Retry-After cannot fit in a 100ms budget")
}

func TestExponentialBackoff(t *testing.T) {
	cfg := retry.Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	assert.Zero(t, retry.ExponentialBackoff(0, cfg))
	assert.Equal(t, 100*time.Millisecond, retry.ExponentialBackoff(1, cfg))
	assert.Equal(t, 200*time.Millisecond, retry.ExponentialBackoff(2, cfg))
	assert.Equal(t, 400*time.Millisecond, retry.ExponentialBackoff(3, cfg))
	assert.Equal(t, time.Second, retry.ExponentialBackoff(10, cfg))

	cfg.UseJitter = true
	for attempt := 1; attempt <= 10; attempt++ {
		d := retry.ExponentialBackoff(attempt, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
