// Package ratelimit paces generator calls.
//
// Two layers are applied per call: a local token bucket that blocks until a
// token is available, and an optional Redis fixed-window limit shared by every
// process using the same key. The global layer never blocks; when the window
// is exhausted it returns a RateLimitError carrying the wait, which the retry
// middleware honours. Redis failures degrade to local-only pacing.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
)

var (
	errRequestsPerSecondInvalid = errors.New("requests_per_second must be > 0")
	errBurstInvalid             = errors.New("burst must be >= 1")
	errGlobalLimitInvalid       = errors.New("global_requests_per_second must be >= 0")
)

// Config controls request pacing. The local token bucket paces this process;
// GlobalRequestsPerSecond, when positive, adds a Redis-backed limit shared by
// every worker using the same Key.
type Config struct {
	// RequestsPerSecond is the sustained local rate.
	RequestsPerSecond float64

	// Burst is the local bucket size.
	Burst int

	// GlobalRequestsPerSecond is the shared per-second limit enforced through
	// Redis. Zero disables the global layer.
	GlobalRequestsPerSecond int

	// Key names the shared window, typically the provider model.
	Key string
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w, got %v", errRequestsPerSecondInvalid, c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("%w, got %d", errBurstInvalid, c.Burst)
	}
	if c.GlobalRequestsPerSecond < 0 {
		return fmt.Errorf("%w, got %d", errGlobalLimitInvalid, c.GlobalRequestsPerSecond)
	}
	return nil
}

// Middleware paces a Generator so bursts of concurrent tasks stay within the
// provider's request budget. Callers wait for a token rather than fail;
// only a cancelled context or an unavailable global limiter ends the wait
// early. It is safe for concurrent use.
type Middleware struct {
	local *rate.Limiter

	global       *redis.Client
	globalLimit  int
	globalKey    string
	degradedMode atomic.Bool

	logger *slog.Logger
	stats  limiterStats
}

// New creates pacing middleware. client may be nil, which disables the
// global layer regardless of cfg.GlobalRequestsPerSecond.
func New(cfg Config, client *redis.Client) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: rate_limit: %w", domain.ErrInvalidConfig, err)
	}
	key := cfg.Key
	if key == "" {
		key = "default"
	}
	return &Middleware{
		local:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		global:      client,
		globalLimit: cfg.GlobalRequestsPerSecond,
		globalKey:   "rl:global:" + key,
		logger:      slog.Default().With("component", "ratelimit"),
	}, nil
}

// Wrap returns next decorated with pacing. It has the llm.Middleware signature.
func (m *Middleware) Wrap(next llm.Generator) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
		start := time.Now()
		if err := m.local.Wait(ctx); err != nil {
			m.stats.cancelled.Add(1)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("local rate limit wait: %w", err)
		}
		m.stats.recordWait(time.Since(start))

		if err := m.checkGlobal(ctx); err != nil {
			m.stats.globalDenied.Add(1)
			return nil, err
		}

		m.stats.allowed.Add(1)
		return next.Generate(ctx, item, params)
	})
}

// Stats returns a snapshot of pacing counters.
func (m *Middleware) Stats() Stats {
	s := m.stats.snapshot()
	s.Degraded = m.degradedMode.Load()
	return s
}
