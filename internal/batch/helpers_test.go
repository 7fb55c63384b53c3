package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
)

// instrumentedGenerator is a deterministic Generator that records how many
// calls are in flight at once and how often each item was requested.
// Generated questions and answers embed the item ID so tests can detect
// records attributed to the wrong source.
type instrumentedGenerator struct {
	mu      sync.Mutex
	current int
	peak    int
	calls   map[string]int

	// latency returns the artificial delay for an item; nil means none.
	latency func(item domain.CorpusItem) time.Duration
	// pairs overrides the number of pairs returned per item; nil uses params.
	pairs func(item domain.CorpusItem) int

	failures map[string]error
	panics   map[string]any
}

func newInstrumentedGenerator() *instrumentedGenerator {
	return &instrumentedGenerator{
		calls:    make(map[string]int),
		failures: make(map[string]error),
		panics:   make(map[string]any),
	}
}

func (g *instrumentedGenerator) Generate(
	ctx context.Context,
	item domain.CorpusItem,
	params domain.GenerationParams,
) ([]domain.GeneratedPair, error) {
	g.enter(item.ID)
	defer g.exit()

	if g.latency != nil {
		if d := g.latency(item); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if p, ok := g.panics[item.ID]; ok {
		panic(p)
	}
	if err := g.failures[item.ID]; err != nil {
		return nil, err
	}

	n := params.PairsPerItem
	if g.pairs != nil {
		n = g.pairs(item)
	}
	return pairsFor(item.ID, n), nil
}

func (g *instrumentedGenerator) enter(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.calls[id]++
}

func (g *instrumentedGenerator) exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current--
}

// Peak returns the concurrent-call high-water mark.
func (g *instrumentedGenerator) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// Calls returns how many times the generator was called for id.
func (g *instrumentedGenerator) Calls(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

// TotalCalls returns the number of generator calls across all items.
func (g *instrumentedGenerator) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

// pairsFor returns n pairs whose text names the item they came from.
func pairsFor(id string, n int) []domain.GeneratedPair {
	pairs := make([]domain.GeneratedPair, 0, n)
	for i := range n {
		pairs = append(pairs, domain.GeneratedPair{
			Question: fmt.Sprintf("question %d about [%s]", i, id),
			Answer:   fmt.Sprintf("answer %d from [%s]", i, id),
		})
	}
	return pairs
}

// recordMatchesSource reports whether a record's text names its SourceID.
func recordMatchesSource(r domain.EvalRecord) bool {
	tag := "[" + r.SourceID + "]"
	return strings.Contains(r.Question, tag) && strings.Contains(r.Answer, tag)
}

// makeItems builds n items with IDs item-000, item-001, ...
func makeItems(n int) []domain.CorpusItem {
	items := make([]domain.CorpusItem, 0, n)
	for i := range n {
		items = append(items, domain.CorpusItem{
			ID:     fmt.Sprintf("item-%03d", i),
			Fields: map[string]string{"review": fmt.Sprintf("review body %d", i)},
		})
	}
	return items
}

// namedItems builds items with the given IDs.
func namedItems(ids ...string) []domain.CorpusItem {
	items := make([]domain.CorpusItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.CorpusItem{ID: id, Fields: map[string]string{"review": "text of " + id}})
	}
	return items
}

func params(n int) domain.GenerationParams {
	return domain.GenerationParams{PairsPerItem: n}
}
