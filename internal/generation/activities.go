package generation

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-evalset/internal/batch"
	"github.com/ahrav/go-evalset/internal/corpus"
	"github.com/ahrav/go-evalset/internal/dataset"
	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
	"github.com/ahrav/go-evalset/pkg/activity"
)

// Progress is recorded as heartbeat details after each item completes.
type Progress struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Activities hosts dataset generation as a Temporal activity. Workflow
// inputs and outputs stay reference sized: the activity resolves the corpus
// reference itself, and the records it produces go straight to the run's
// sink. Only a summary and the output reference return through history.
type Activities struct {
	activity.BaseActivities
	generator   llm.Generator
	sources     corpus.SourceFactory
	sinks       dataset.SinkFactory
	taskTimeout time.Duration
	events      *EventEmitter
}

// NewActivities creates the activities. sources resolves corpus references
// and sinks opens each run's output. taskTimeout bounds a single item's
// generator call; zero leaves items bounded only by the activity context.
func NewActivities(
	base activity.BaseActivities,
	generator llm.Generator,
	sources corpus.SourceFactory,
	sinks dataset.SinkFactory,
	taskTimeout time.Duration,
) *Activities {
	return &Activities{
		BaseActivities: base,
		generator:      generator,
		sources:        sources,
		sinks:          sinks,
		taskTimeout:    taskTimeout,
		events:         NewEventEmitter(base),
	}
}

// GenerateDataset loads the referenced corpus, runs the batch orchestrator
// over it, and writes the aggregate through the run's sink. Item failures
// are part of the output, never an activity error. Invalid requests and
// corpora fail without retry; load and write failures are retried. Sinks
// replace earlier output for the same run, so a retried attempt leaves one
// copy of the dataset.
func (a *Activities) GenerateDataset(
	ctx context.Context,
	input domain.GenerateDatasetInput,
) (*domain.GenerateDatasetOutput, error) {
	req := input.Request
	if err := req.Validate(); err != nil {
		return nil, nonRetryable(ErrTypeConfiguration, err, "invalid dataset request")
	}
	if a.generator == nil {
		return nil, nonRetryable(ErrTypeConfiguration, domain.ErrInvalidConfig, "no generator configured")
	}
	if a.sources == nil || a.sinks == nil {
		return nil, nonRetryable(ErrTypeConfiguration, domain.ErrInvalidConfig, "no corpus source or dataset sink configured")
	}

	wfCtx := a.GetWorkflowContext(ctx)

	items, err := a.loadCorpus(ctx, req)
	if err != nil {
		return nil, err
	}

	sink, err := a.sinks(req.RunID)
	if err != nil {
		return nil, nonRetryable(ErrTypeConfiguration, err, "failed to open dataset sink")
	}

	progress := Progress{Total: len(items)}
	orch := batch.New(a.generator, batch.Options{
		Concurrency:  req.Concurrency,
		RequireItems: req.RequireItems,
		TaskTimeout:  a.taskTimeout,
		RunID:        req.RunID,
		OnOutcome: func(o domain.TaskOutcome) {
			progress.Completed++
			if !o.Succeeded() {
				progress.Failed++
				a.events.EmitItemFailed(ctx, wfCtx, req.RunID, o)
			}
			a.RecordHeartbeat(ctx, progress)
		},
	})

	activity.SafeLog(ctx, "Generating dataset",
		"run_id", req.RunID,
		"items", len(items),
		"concurrency", req.Concurrency,
		"attempt", wfCtx.Attempt)

	start := time.Now()
	agg, err := orch.Run(ctx, items, req.Params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		activity.SafeLogError(ctx, "Dataset generation did not complete",
			"run_id", req.RunID,
			"error", err)
		return nil, classifyRunError(err)
	}

	activity.SafeLog(ctx, "Dataset generated",
		"run_id", req.RunID,
		"summary", agg.Summary(),
		"latency_ms", latency)
	a.events.EmitDatasetGenerated(ctx, wfCtx, req.RunID, agg, latency)

	if err := sink.Write(ctx, agg); err != nil {
		activity.SafeLogError(ctx, "Failed to persist dataset",
			"run_id", req.RunID,
			"error", err)
		return nil, retryable(ErrTypePersist, err, "failed to persist dataset")
	}

	summary := domain.NewDatasetSummary(req.RunID, agg)
	ref := sink.Ref()
	summary.Output = &ref
	a.events.EmitDatasetPersisted(ctx, wfCtx, req.RunID, summary)

	return &domain.GenerateDatasetOutput{
		RunID:     req.RunID,
		Summary:   summary,
		LatencyMs: latency,
	}, nil
}

// loadCorpus resolves and loads the request's corpus. An unusable reference
// or corpus is a configuration error; anything else may succeed on retry.
func (a *Activities) loadCorpus(ctx context.Context, req domain.DatasetRequest) ([]domain.CorpusItem, error) {
	src, err := a.sources(req.Corpus)
	if err == nil {
		var items []domain.CorpusItem
		if items, err = src.Load(ctx); err == nil {
			activity.SafeLog(ctx, "Corpus loaded",
				"run_id", req.RunID,
				"source", req.Corpus.Source,
				"items", len(items))
			return items, nil
		}
	}

	activity.SafeLogError(ctx, "Failed to load corpus",
		"run_id", req.RunID,
		"source", req.Corpus.Source,
		"error", err)
	if errors.Is(err, domain.ErrConfiguration) {
		return nil, nonRetryable(ErrTypeConfiguration, err, "invalid corpus")
	}
	return nil, retryable(ErrTypeLoad, err, "failed to load corpus")
}
