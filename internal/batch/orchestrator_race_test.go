package batch

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalset/internal/domain"
)

// TestConcurrentRunsShareGenerator verifies that independent runs sharing one
// generator neither interfere with each other's ceilings nor mix records.
// Run with: go test -race -run TestConcurrentRunsShareGenerator
func TestConcurrentRunsShareGenerator(t *testing.T) {
	const runs, itemsPerRun, k = 8, 50, 4

	gen := newInstrumentedGenerator()
	gen.latency = func(domain.CorpusItem) time.Duration {
		return time.Duration(rand.IntN(300)) * time.Microsecond
	}

	var wg sync.WaitGroup
	results := make([]*domain.DatasetAggregate, runs)
	errs := make([]error, runs)
	for r := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := makeItems(itemsPerRun)
			for i := range items {
				items[i].ID = items[i].ID + "-run" + string(rune('a'+r))
			}
			results[r], errs[r] = Run(context.Background(), gen, items, params(2), k)
		}()
	}
	wg.Wait()

	for r := range runs {
		require.NoError(t, errs[r])
		assert.Equal(t, itemsPerRun, results[r].Outcomes)
		assert.Len(t, results[r].Records, 2*itemsPerRun)
		for _, rec := range results[r].Records {
			assert.True(t, recordMatchesSource(rec))
		}
	}
	assert.LessOrEqual(t, gen.Peak(), runs*k)
}

// TestConcurrentFailuresDoNotTearAggregate fails many items simultaneously
// and checks the aggregate stays consistent.
func TestConcurrentFailuresDoNotTearAggregate(t *testing.T) {
	const n = 500

	gen := newInstrumentedGenerator()
	items := makeItems(n)
	for i, it := range items {
		if i%2 == 0 {
			gen.failures[it.ID] = errors.New("simultaneous failure")
		}
	}

	agg, err := Run(context.Background(), gen, items, params(1), 64)
	require.NoError(t, err)
	assert.Equal(t, n, agg.Outcomes)
	assert.Len(t, agg.Failures, n/2)
	assert.Len(t, agg.Records, n/2)

	for i, f := range agg.Failures {
		assert.Equal(t, items[i*2].ID, f.SourceID, "failures are listed in corpus order")
	}
}
