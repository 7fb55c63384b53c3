package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

// jitterDivisor bounds the open-timeout jitter to a tenth of the timeout.
const jitterDivisor = 10

// State is the breaker's position in the closed, open, half-open cycle.
type State int32

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the open timeout elapses.
	StateOpen
	// StateHalfOpen lets a bounded number of probe calls through.
	StateHalfOpen
)

// String returns the state name used in logs and stats.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned for calls the breaker rejects. It unwraps to
// llmerrors.ErrCircuitOpen and so classifies as a retryable provider failure.
type OpenError struct {
	State      State
	RetryAfter time.Duration
}

// Error describes the rejection.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker is %s, retry after %s", e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Unwrap lets errors.Is match llmerrors.ErrCircuitOpen.
func (e *OpenError) Unwrap() error { return llmerrors.ErrCircuitOpen }

// GetRetryAfter returns the time left until the breaker admits probes.
func (e *OpenError) GetRetryAfter() time.Duration { return e.RetryAfter }

// breaker is a lock-free three-state circuit breaker. Counters are only
// meaningful for the state they belong to and are reset on every transition.
type breaker struct {
	state     atomic.Int32
	failures  atomic.Int32
	successes atomic.Int32
	probes    atomic.Int32
	openUntil atomic.Int64 // unix nanoseconds

	failureThreshold int
	successThreshold int
	maxProbes        int
	openTimeout      time.Duration

	adaptive *adaptiveThresholds
	stats    *breakerStats
	logger   *slog.Logger
	now      func() time.Time
}

func newBreaker(cfg Config, logger *slog.Logger) *breaker {
	b := &breaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		maxProbes:        cfg.HalfOpenProbes,
		openTimeout:      cfg.OpenTimeout,
		stats:            &breakerStats{},
		logger:           logger,
		now:              time.Now,
	}
	if cfg.Adaptive {
		b.adaptive = newAdaptiveThresholds(cfg.FailureThreshold, time.Minute, func() time.Time { return b.now() })
	}
	b.state.Store(int32(StateClosed))
	return b
}

func (b *breaker) current() State { return State(b.state.Load()) }

// jitter spreads the end of the open period so concurrent callers do not
// probe in lockstep.
func (b *breaker) jitter() time.Duration {
	limit := int64(b.openTimeout / jitterDivisor)
	if limit <= 0 {
		return 0
	}
	//nolint:gosec // jitter does not need a cryptographic source
	return time.Duration(rand.Int64N(limit))
}

// admit decides whether a call may proceed. The returned release func must
// be called once the call completes.
func (b *breaker) admit() (release func(), err error) {
	for {
		switch s := b.current(); s {
		case StateClosed:
			b.stats.allowed.Add(1)
			return func() {}, nil

		case StateOpen:
			remaining := time.Duration(b.openUntil.Load() - b.now().UnixNano())
			if remaining > 0 {
				b.stats.rejected.Add(1)
				return nil, &OpenError{State: StateOpen, RetryAfter: remaining}
			}
			b.transition(StateOpen, StateHalfOpen)

		case StateHalfOpen:
			n := b.probes.Load()
			if int(n) >= b.maxProbes {
				b.stats.rejected.Add(1)
				return nil, &OpenError{State: StateHalfOpen}
			}
			if !b.probes.CompareAndSwap(n, n+1) {
				continue
			}
			b.stats.allowed.Add(1)
			b.stats.probeAttempts.Add(1)
			return b.releaseProbe, nil

		default:
			return nil, fmt.Errorf("circuit breaker: unknown state %d", s)
		}
	}
}

// releaseProbe frees a half-open slot. A transition may already have reset
// the counter, so it saturates at zero.
func (b *breaker) releaseProbe() {
	for {
		n := b.probes.Load()
		if n == 0 || b.probes.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// record feeds a call result into the state machine. Only failures that say
// something about provider health count against the breaker; a rejected
// request or an unparseable answer still proves the provider is reachable.
// A cancelled call says nothing either way.
func (b *breaker) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if countsAsFailure(err) {
		b.recordFailure()
		return
	}
	b.recordSuccess()
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch llmerrors.Classify(err) {
	case domain.FailureProvider, domain.FailureTimeout, domain.FailureNetwork:
		return true
	default:
		return false
	}
}

func (b *breaker) recordSuccess() {
	if b.adaptive != nil {
		b.adaptive.record(true)
	}
	switch b.current() {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		b.stats.probeSuccesses.Add(1)
		if int(b.successes.Add(1)) >= b.successThreshold {
			b.transition(StateHalfOpen, StateClosed)
		}
	case StateOpen:
		// A call admitted before the breaker opened; the open period stands.
	}
}

func (b *breaker) recordFailure() {
	if b.adaptive != nil {
		b.adaptive.record(false)
	}
	switch b.current() {
	case StateClosed:
		threshold := b.failureThreshold
		if b.adaptive != nil {
			threshold = b.adaptive.threshold()
		}
		if int(b.failures.Add(1)) >= threshold {
			b.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen)
	case StateOpen:
	}
}

// transition moves from one state to another if no other goroutine got
// there first, and resets the counters owned by the new state.
func (b *breaker) transition(from, to State) bool {
	if to == StateOpen {
		b.openUntil.Store(b.now().Add(b.openTimeout + b.jitter()).UnixNano())
	}
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.probes.Store(0)
	b.stats.transitions.Add(1)
	b.logger.Info("circuit breaker state transition", "from", from.String(), "to", to.String())
	return true
}
