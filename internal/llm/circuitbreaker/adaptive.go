package circuitbreaker

import (
	"sync"
	"time"
)

const (
	// minRequestsForAdjustment is the sample size below which the base
	// threshold is kept.
	minRequestsForAdjustment = 10
	highErrorRate            = 0.5
	mediumErrorRate          = 0.3
	mediumThresholdFactor    = 0.75
)

// adaptiveThresholds lowers the failure threshold while the error rate over
// a fixed window is high, so a degrading provider trips the breaker sooner.
type adaptiveThresholds struct {
	mu          sync.Mutex
	base        int
	current     int
	requests    int
	failures    int
	windowStart time.Time
	window      time.Duration
	now         func() time.Time
}

func newAdaptiveThresholds(base int, window time.Duration, now func() time.Time) *adaptiveThresholds {
	return &adaptiveThresholds{
		base:        base,
		current:     base,
		window:      window,
		windowStart: now(),
		now:         now,
	}
}

func (a *adaptiveThresholds) record(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if now := a.now(); now.Sub(a.windowStart) > a.window {
		a.requests, a.failures = 0, 0
		a.windowStart = now
	}
	a.requests++
	if !success {
		a.failures++
	}
	if a.requests < minRequestsForAdjustment {
		return
	}

	rate := float64(a.failures) / float64(a.requests)
	switch {
	case rate > highErrorRate:
		a.current = a.base / 2
	case rate > mediumErrorRate:
		a.current = int(float64(a.base) * mediumThresholdFactor)
	default:
		a.current = a.base
	}
	a.current = max(a.current, 1)
}

func (a *adaptiveThresholds) threshold() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
