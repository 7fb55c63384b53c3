// Package batch runs a generator over a whole corpus with a concurrency
// ceiling. Each item gets one task; each task produces exactly one outcome;
// outcomes are folded into a DatasetAggregate in corpus order. A failing item
// never aborts or corrupts its siblings: it becomes a failure entry next to
// everyone else's records.
//
// Components:
//   - Limiter: at most K slots, FIFO admission, idempotent release
//   - Runner: one generator call per item, failures and panics become data
//   - Orchestrator: submission, join, and aggregation
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
)

// Options configures an Orchestrator.
type Options struct {
	// Concurrency is the ceiling K on in-flight generator calls. Must be >= 1.
	Concurrency int

	// RequireItems makes an empty corpus a configuration error instead of an
	// empty result.
	RequireItems bool

	// TaskTimeout bounds each generator call. Zero means no per-call bound.
	TaskTimeout time.Duration

	// OnOutcome, if set, is called once per outcome in completion order.
	// Calls are serialized on the orchestrator's goroutine.
	OnOutcome func(domain.TaskOutcome)

	// RunID labels the run's log lines. A random ID is used when empty.
	RunID string

	// Logger defaults to slog.Default() tagged with component=batch.
	Logger *slog.Logger
}

// Orchestrator drives a corpus through Runner and Limiter and aggregates the
// outcomes. A single Orchestrator may be used for several runs; each run gets
// its own limiter.
//
// Run validates its input before scheduling anything, starts one task per
// item, and folds outcomes back into corpus order regardless of completion
// order. Cancelling the context stops tasks that have not acquired a slot;
// they still produce failure outcomes, so the aggregate always covers every
// item.
type Orchestrator struct {
	gen    llm.Generator
	opts   Options
	logger *slog.Logger
}

// New creates an orchestrator over gen. Options are validated on Run so a
// misconfigured orchestrator reports the error together with its input.
func New(gen llm.Generator, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gen:    gen,
		opts:   opts,
		logger: logger.With("component", "batch"),
	}
}

// Run generates records for items with at most K concurrent generator calls
// and returns the aggregate once every item has an outcome.
//
// Configuration errors (K < 1, invalid params, an empty corpus when items are
// required) are returned before any task starts. Item failures are never
// returned as errors; they are listed in the aggregate. If ctx is cancelled
// the aggregate is still complete and the error wraps domain.ErrBatchCancelled.
func (o *Orchestrator) Run(
	ctx context.Context,
	items []domain.CorpusItem,
	params domain.GenerationParams,
) (*domain.DatasetAggregate, error) {
	if err := o.validate(items, params); err != nil {
		return nil, err
	}

	agg := domain.NewDatasetAggregate()
	if len(items) == 0 {
		return agg, nil
	}

	limiter, err := NewLimiter(o.opts.Concurrency)
	if err != nil {
		return nil, err
	}
	runner := NewRunner(o.gen, limiter, o.opts.TaskTimeout, o.logger)

	runID := o.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	o.logger.InfoContext(ctx, "batch started",
		"run_id", runID,
		"items", len(items),
		"concurrency", o.opts.Concurrency)

	outcomes := o.execute(ctx, runner, items, params)
	for _, outcome := range outcomes {
		agg.Add(outcome)
	}

	o.logger.InfoContext(ctx, "batch completed",
		"run_id", runID,
		"items", len(items),
		"records", len(agg.Records),
		"failures", len(agg.Failures),
		"duration_ms", time.Since(start).Milliseconds())

	if leaked := limiter.InFlight(); leaked != 0 {
		o.logger.ErrorContext(ctx, "limiter slots still held after join", "run_id", runID, "slots", leaked)
		return agg, fmt.Errorf("%w: %d", domain.ErrSlotLeak, leaked)
	}
	if err := ctx.Err(); err != nil {
		return agg, fmt.Errorf("%w: %w", domain.ErrBatchCancelled, err)
	}
	return agg, nil
}

// execute submits one task per item without waiting on earlier tasks and
// returns the outcomes indexed by corpus position. Each task writes only its
// own slot; the completion channel orders those writes before the reads here.
func (o *Orchestrator) execute(
	ctx context.Context,
	runner *Runner,
	items []domain.CorpusItem,
	params domain.GenerationParams,
) []domain.TaskOutcome {
	outcomes := make([]domain.TaskOutcome, len(items))
	completed := make(chan int, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = runner.Run(ctx, i, item, params)
			completed <- i
		}()
	}

	go func() {
		wg.Wait()
		close(completed)
	}()

	for i := range completed {
		o.notify(outcomes[i])
	}
	return outcomes
}

// notify delivers an outcome to the OnOutcome hook. A panicking hook is logged
// and otherwise ignored so it cannot strand running tasks.
func (o *Orchestrator) notify(outcome domain.TaskOutcome) {
	if o.opts.OnOutcome == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("outcome hook panicked", "item_id", outcome.SourceID, "panic", p)
		}
	}()
	o.opts.OnOutcome(outcome)
}

// validate rejects structurally invalid submissions. Every check runs before
// the first task is scheduled, so a rejected batch never calls the generator.
// Item IDs must be unique because records and failures are keyed by them.
func (o *Orchestrator) validate(items []domain.CorpusItem, params domain.GenerationParams) error {
	if o.opts.Concurrency < 1 {
		return fmt.Errorf("%w, got %d", domain.ErrInvalidConcurrency, o.opts.Concurrency)
	}
	if o.gen == nil {
		return fmt.Errorf("%w: generator is required", domain.ErrConfiguration)
	}
	if len(items) == 0 {
		if o.opts.RequireItems {
			return domain.ErrEmptyCorpus
		}
		return nil
	}
	if err := domain.CheckUniqueIDs(items); err != nil {
		return err
	}
	return params.Validate()
}

// Run is a convenience wrapper that builds an orchestrator with ceiling k and
// runs it once.
func Run(
	ctx context.Context,
	gen llm.Generator,
	items []domain.CorpusItem,
	params domain.GenerationParams,
	k int,
) (*domain.DatasetAggregate, error) {
	return New(gen, Options{Concurrency: k}).Run(ctx, items, params)
}
