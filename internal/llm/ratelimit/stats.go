package ratelimit

import (
	"sync/atomic"
	"time"
)

// limiterStats holds the middleware's counters.
type limiterStats struct {
	allowed      atomic.Int64
	globalDenied atomic.Int64
	cancelled    atomic.Int64
	totalWaitNs  atomic.Int64
}

// Stats is a snapshot of pacing activity. GlobalDenied counts refusals from
// the shared Redis limit and Degraded reports that the global limiter is
// unreachable and only local pacing applies.
type Stats struct {
	Allowed      int64         `json:"allowed"`
	GlobalDenied int64         `json:"global_denied"`
	Cancelled    int64         `json:"cancelled"`
	TotalWait    time.Duration `json:"total_wait"`
	Degraded     bool          `json:"degraded"`
}

func (s *limiterStats) recordWait(d time.Duration) { s.totalWaitNs.Add(int64(d)) }

func (s *limiterStats) snapshot() Stats {
	return Stats{
		Allowed:      s.allowed.Load(),
		GlobalDenied: s.globalDenied.Load(),
		Cancelled:    s.cancelled.Load(),
		TotalWait:    time.Duration(s.totalWaitNs.Load()),
	}
}
