package circuitbreaker

import "sync/atomic"

// breakerStats holds the breaker's counters.
type breakerStats struct {
	transitions    atomic.Int64
	allowed        atomic.Int64
	rejected       atomic.Int64
	probeAttempts  atomic.Int64
	probeSuccesses atomic.Int64
}

// Stats is a snapshot of breaker activity. State is the state when the
// snapshot was taken; the counters are cumulative since the middleware was
// created.
type Stats struct {
	State            string `json:"state"`
	StateTransitions int64  `json:"state_transitions"`
	RequestsAllowed  int64  `json:"requests_allowed"`
	RequestsRejected int64  `json:"requests_rejected"`
	ProbeAttempts    int64  `json:"probe_attempts"`
	ProbeSuccesses   int64  `json:"probe_successes"`
}

func (s *breakerStats) snapshot(state State) Stats {
	return Stats{
		State:            state.String(),
		StateTransitions: s.transitions.Load(),
		RequestsAllowed:  s.allowed.Load(),
		RequestsRejected: s.rejected.Load(),
		ProbeAttempts:    s.probeAttempts.Load(),
		ProbeSuccesses:   s.probeSuccesses.Load(),
	}
}
