package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Limiter admits at most K concurrent holders. Waiters are admitted in FIFO
// order, so every caller eventually acquires a slot.
//
// A Limiter is safe for concurrent use. It tracks the number of held slots
// so callers and tests can check the ceiling and detect leaked slots once a
// batch completes.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewLimiter creates a limiter with k slots. k must be at least 1; smaller
// values return an error wrapping domain.ErrInvalidConcurrency.
func NewLimiter(k int) (*Limiter, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w, got %d", domain.ErrInvalidConcurrency, k)
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(k)), capacity: k}, nil
}

// Acquire blocks until a slot is free or ctx is done. On success it returns a
// release function that must be called exactly once the slot is no longer
// needed; extra calls are no-ops, so `defer release()` is always safe.
// On failure no slot is held.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	// semaphore.Acquire may succeed on an already-cancelled ctx; check first so
	// cancelled callers never start work.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	// The semaphore can hand over a slot concurrently with cancellation.
	if err := ctx.Err(); err != nil {
		l.sem.Release(1)
		return nil, err
	}
	l.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of slots currently held. It is zero once every
// acquired slot has been released.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Capacity returns K.
func (l *Limiter) Capacity() int { return l.capacity }
