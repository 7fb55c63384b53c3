// Package circuitbreaker provides generator middleware that stops calling a
// failing provider for a cool-down period.
//
// The breaker opens after FailureThreshold consecutive provider failures
// (5xx, timeouts, network errors). While open, calls fail fast with an
// OpenError that carries the remaining cool-down, which the retry middleware
// honours. After OpenTimeout the breaker admits up to HalfOpenProbes probe
// calls; SuccessThreshold probe successes close it again and any probe
// failure reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
)

var (
	errFailureThresholdInvalid = errors.New("failure_threshold must be >= 1")
	errSuccessThresholdInvalid = errors.New("success_threshold must be >= 1")
	errOpenTimeoutInvalid      = errors.New("open_timeout must be > 0")
	errHalfOpenProbesInvalid   = errors.New("half_open_probes must be >= 1")
)

// Config controls when the breaker opens and how it recovers.
type Config struct {
	// FailureThreshold is the run of consecutive provider failures that opens
	// the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of probe successes that close it again.
	SuccessThreshold int

	// OpenTimeout is how long the breaker rejects calls before probing.
	OpenTimeout time.Duration

	// HalfOpenProbes caps concurrent probe calls while half-open.
	HalfOpenProbes int

	// Adaptive lowers FailureThreshold while the recent error rate is high.
	Adaptive bool
}

// DefaultConfig returns the breaker settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w, got %d", errFailureThresholdInvalid, c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("%w, got %d", errSuccessThresholdInvalid, c.SuccessThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("%w, got %v", errOpenTimeoutInvalid, c.OpenTimeout)
	}
	if c.HalfOpenProbes < 1 {
		return fmt.Errorf("%w, got %d", errHalfOpenProbesInvalid, c.HalfOpenProbes)
	}
	return nil
}

// Middleware guards a Generator with a single circuit breaker. Every item of
// a batch shares the breaker, so once the provider is down the remaining
// items fail fast instead of each waiting out its own timeouts. Rejected
// calls return an OpenError that the retry middleware waits out.
// It is safe for concurrent use.
type Middleware struct {
	breaker *breaker
	logger  *slog.Logger
}

// New creates breaker middleware. Invalid configuration is a configuration error.
func New(cfg Config) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: circuit_breaker: %w", domain.ErrInvalidConfig, err)
	}
	logger := slog.Default().With("component", "circuitbreaker")
	return &Middleware{
		breaker: newBreaker(cfg, logger),
		logger:  logger,
	}, nil
}

// Wrap returns next guarded by the breaker. It has the llm.Middleware signature.
func (m *Middleware) Wrap(next llm.Generator) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
		release, err := m.breaker.admit()
		if err != nil {
			m.logger.DebugContext(ctx, "call rejected", "item_id", item.ID, "error", err)
			return nil, err
		}
		defer release()

		pairs, err := next.Generate(ctx, item, params)
		m.breaker.record(err)
		return pairs, err
	})
}

// State returns the breaker's current state.
func (m *Middleware) State() State { return m.breaker.current() }

// Stats returns a snapshot of the breaker's counters.
func (m *Middleware) Stats() Stats { return m.breaker.stats.snapshot(m.breaker.current()) }
