// Package llm provides the question/answer generator used to bootstrap
// evaluation datasets. A Generator turns one corpus item into question/answer
// pairs; implementations call an LLM provider, and middleware adds caching,
// request pacing, retries, and logging around any Generator.
//
// Architecture:
//   - Generator is the only contract the batch orchestrator depends on
//   - Middleware wraps a Generator and returns a Generator, composed with Chain
//   - Provider failures are returned as typed errors from internal/llm/errors
//   - Generators never see or return the item's ID in the pairs they produce
package llm

import (
	"context"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Generator produces question/answer pairs grounded in one corpus item.
// Implementations must be safe for concurrent use and should return promptly
// when ctx is cancelled.
type Generator interface {
	Generate(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
// Middleware returns GeneratorFuncs, and tests use them as fakes.
type GeneratorFunc func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error)

// Generate calls f(ctx, item, params).
func (f GeneratorFunc) Generate(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
	return f(ctx, item, params)
}

// Middleware decorates a Generator with cross-cutting behavior such as
// caching or retries. A middleware must pass the item and params through
// unchanged and must not alter the pairs of a successful call.
type Middleware func(next Generator) Generator

// Chain wraps g with the given middleware. The first middleware is the
// outermost: Chain(g, a, b) calls a, then b, then g.
func Chain(g Generator, mws ...Middleware) Generator {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			g = mws[i](g)
		}
	}
	return g
}
