package retry

import (
	"sync/atomic"
	"time"
)

// retryStats holds the middleware's counters.
type retryStats struct {
	totalAttempts           atomic.Int64
	successfulRetries       atomic.Int64
	failedRetries           atomic.Int64
	successfulFirstAttempts atomic.Int64
	nonRetryable            atomic.Int64
	maxBackoff              atomic.Int64 // nanoseconds
}

// Stats is a snapshot of retry activity. AverageAttempts counts every call
// the middleware handled, including calls that succeeded on the first try.
// MaxBackoff is the longest single wait observed so far.
type Stats struct {
	TotalAttempts     int64         `json:"total_attempts"`
	SuccessfulRetries int64         `json:"successful_retries"`
	FailedRetries     int64         `json:"failed_retries"`
	NonRetryable      int64         `json:"non_retryable"`
	AverageAttempts   float64       `json:"average_attempts"`
	MaxBackoff        time.Duration `json:"max_backoff"`
}

func (s *retryStats) recordBackoff(d time.Duration) {
	n := d.Nanoseconds()
	for {
		current := s.maxBackoff.Load()
		if n <= current || s.maxBackoff.CompareAndSwap(current, n) {
			return
		}
	}
}

func (s *retryStats) snapshot() Stats {
	out := Stats{
		TotalAttempts:     s.totalAttempts.Load(),
		SuccessfulRetries: s.successfulRetries.Load(),
		FailedRetries:     s.failedRetries.Load(),
		NonRetryable:      s.nonRetryable.Load(),
		MaxBackoff:        time.Duration(s.maxBackoff.Load()),
		AverageAttempts:   1.0,
	}
	calls := s.successfulFirstAttempts.Load() + out.SuccessfulRetries + out.FailedRetries + out.NonRetryable
	if calls > 0 {
		out.AverageAttempts = float64(out.TotalAttempts) / float64(calls)
	}
	return out
}
