// Package retry provides generator middleware that retries transient failures
// with exponential backoff and full jitter, honouring provider Retry-After
// guidance.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

var (
	// Configuration validation errors.
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
	errMaxElapsedTimeInvalid  = errors.New("maxElapsedTime must be >= 0")
)

// Config controls retry behaviour. Attempts stop at whichever limit is hit
// first: MaxAttempts calls or MaxElapsedTime since the first call.
type Config struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// MaxElapsedTime bounds the total time spent across attempts. Zero disables it.
	MaxElapsedTime time.Duration

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// UseJitter applies full jitter to each backoff.
	UseJitter bool
}

// DefaultConfig returns the retry settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		MaxElapsedTime:  time.Minute,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, c.MaxAttempts)
	}
	if c.InitialInterval <= 0 {
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, c.InitialInterval)
	}
	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, c.MaxInterval, c.InitialInterval)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, c.Multiplier)
	}
	if c.MaxElapsedTime < 0 {
		return fmt.Errorf("%w, got %v", errMaxElapsedTimeInvalid, c.MaxElapsedTime)
	}
	return nil
}

// Middleware implements retry logic with exponential backoff around a
// Generator. It handles transient failures and respects provider retry
// guidance such as Retry-After headers and an open circuit breaker's
// cool-down. Non-retryable failures are returned after the first attempt.
// It is safe for concurrent use.
type Middleware struct {
	config Config
	logger *slog.Logger
	stats  *retryStats
}

// New creates retry middleware. Invalid configuration is a configuration error.
func New(cfg Config) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: retry: %w", domain.ErrInvalidConfig, err)
	}
	return &Middleware{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		stats:  &retryStats{},
	}, nil
}

// Wrap returns next decorated with retries. It has the llm.Middleware signature.
func (m *Middleware) Wrap(next llm.Generator) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		var lastErr error
		for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
			pairs, err := next.Generate(ctx, item, params)
			m.stats.totalAttempts.Add(1)

			if err == nil {
				if attempt > 1 {
					m.stats.successfulRetries.Add(1)
					m.logger.InfoContext(ctx, "generation succeeded after retry",
						"item_id", item.ID, "attempt", attempt)
				} else {
					m.stats.successfulFirstAttempts.Add(1)
				}
				return pairs, nil
			}

			if !llmerrors.IsRetryable(err) || ctx.Err() != nil {
				m.stats.nonRetryable.Add(1)
				return nil, err
			}
			lastErr = err

			if attempt == m.config.MaxAttempts {
				break
			}

			backoff := m.backoff(attempt, err)
			if m.config.MaxElapsedTime > 0 && time.Since(start)+backoff > m.config.MaxElapsedTime {
				m.logger.WarnContext(ctx, "max elapsed time exceeded",
					"item_id", item.ID,
					"elapsed", time.Since(start),
					"attempts", attempt,
					"last_error", err)
				break
			}
			m.stats.recordBackoff(backoff)

			m.logger.DebugContext(ctx, "retrying after backoff",
				"item_id", item.ID,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("retry interrupted: %w (last error: %w)", ctx.Err(), lastErr)
			}
		}

		m.stats.failedRetries.Add(1)
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrMaxRetriesExceeded, lastErr)
	})
}

// Stats returns a snapshot of the middleware's counters.
func (m *Middleware) Stats() Stats { return m.stats.snapshot() }
