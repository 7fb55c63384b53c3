package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

// Runner executes one generator call for one corpus item under a limiter slot
// and converts whatever happens into a TaskOutcome. It never mutates shared
// state; aggregation is left to the orchestrator.
//
// Generator errors are classified into a domain.CollaboratorError and panics
// are recovered into domain.ErrGeneratorPanic, so a misbehaving generator
// only ever fails its own item. Records are stamped with the item ID captured
// before the call.
type Runner struct {
	gen     llm.Generator
	limiter *Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a runner. A zero timeout leaves generator calls bounded
// only by the caller's context.
func NewRunner(gen llm.Generator, limiter *Limiter, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default().With("component", "batch")
	}
	return &Runner{gen: gen, limiter: limiter, timeout: timeout, logger: logger}
}

// Run produces exactly one outcome for item. The limiter slot is released on
// every exit path, including generator errors and panics.
func (r *Runner) Run(ctx context.Context, index int, item domain.CorpusItem, params domain.GenerationParams) domain.TaskOutcome {
	// Captured before the call so the stamp cannot depend on anything the
	// generator does with the item.
	sourceID := item.ID

	release, err := r.limiter.Acquire(ctx)
	if err != nil {
		cause := fmt.Errorf("item %s not started: %w", sourceID, err)
		r.logFailure(ctx, sourceID, domain.TaskPending, cause)
		return domain.Failure(index, sourceID, cause)
	}
	defer release()

	pairs, err := r.invoke(ctx, item, params)
	if err != nil {
		cause := &domain.CollaboratorError{
			SourceID: sourceID,
			Kind:     llmerrors.Classify(err),
			Err:      err,
		}
		r.logFailure(ctx, sourceID, domain.TaskRunning, cause)
		return domain.Failure(index, sourceID, cause)
	}

	return domain.Success(index, sourceID, domain.StampPairs(sourceID, pairs))
}

// invoke calls the generator, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) (pairs []domain.GeneratedPair, err error) {
	defer func() {
		if p := recover(); p != nil {
			pairs = nil
			err = fmt.Errorf("%w: %v", domain.ErrGeneratorPanic, p)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	return r.gen.Generate(ctx, item, params)
}

func (r *Runner) logFailure(ctx context.Context, sourceID string, from domain.TaskState, err error) {
	r.logger.WarnContext(ctx, "task failed",
		"item_id", sourceID,
		"from_state", from.String(),
		"error", err)
}
