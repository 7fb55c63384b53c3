package retry

import (
	"math/rand/v2"
	"time"

	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

// backoff returns the wait before the attempt after `attempt`. A provider
// Retry-After takes precedence over the computed delay.
func (m *Middleware) backoff(attempt int, err error) time.Duration {
	if after := llmerrors.RetryAfter(err); after > 0 {
		return after
	}
	return ExponentialBackoff(attempt, m.config)
}

// ExponentialBackoff computes the delay after the given attempt:
// InitialInterval * Multiplier^(attempt-1), capped at MaxInterval, with full
// jitter when enabled. Returns zero for non-positive attempts.
func ExponentialBackoff(attempt int, config Config) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * max(config.Multiplier, 1.0))
		if config.MaxInterval > 0 && backoff > config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter {
		// Full jitter: uniform in [0, backoff].
		return time.Duration(rand.Int64N(int64(backoff) + 1)) // #nosec G404 -- non-cryptographic jitter
	}
	return backoff
}
