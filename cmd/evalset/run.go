package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ahrav/go-evalset/internal/batch"
	"github.com/ahrav/go-evalset/internal/config"
	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/worker"
)

// runCommand generates a dataset in-process. Item failures do not change the
// exit status; they are listed in the failures output and the summary.
func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "configuration file path")
		concurrency = fs.Int("concurrency", 0, "maximum concurrent generator calls (overrides config)")
		out         = fs.String("out", "", "dataset output path (overrides config)")
		limit       = fs.Int("limit", -1, "maximum corpus items to load (overrides config)")
		runID       = fs.String("run-id", "", "run identifier (default: random)")
	)
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}
	if *concurrency != 0 {
		cfg.Batch.Concurrency = *concurrency
	}
	if *out != "" {
		cfg.Output.Sink = config.BackendFile
		cfg.Output.Path = *out
	}
	if *limit >= 0 {
		cfg.Corpus.Limit = *limit
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitFailure
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	summary, err := generate(ctx, cfg, *runID)
	if summary != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	}
	if err != nil {
		fmt.Fprintf(stderr, "evalset run: %v\n", err)
	}
	return exitCode(err)
}

// generate loads the corpus, runs the orchestrator, and writes the dataset.
// A cancelled run still writes what it produced and reports the cancellation.
func generate(ctx context.Context, cfg *config.Config, runID string) (*domain.DatasetSummary, error) {
	logger := slog.Default().With("component", "cli", "run_id", runID)

	store, err := worker.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	source, err := worker.NewSource(cfg, store)
	if err != nil {
		return nil, err
	}
	items, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	pipeline, err := worker.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pipeline.Close() }()

	sinks, err := worker.NewSinkFactory(cfg, store, worker.SharedOutput)
	if err != nil {
		return nil, err
	}
	sink, err := sinks(runID)
	if err != nil {
		return nil, err
	}

	completed := 0
	orch := batch.New(pipeline.Generator, batch.Options{
		Concurrency:  cfg.Batch.Concurrency,
		RequireItems: cfg.Batch.RequireItems,
		TaskTimeout:  cfg.Batch.TaskTimeout,
		RunID:        runID,
		Logger:       slog.Default(),
		OnOutcome: func(o domain.TaskOutcome) {
			completed++
			if !o.Succeeded() {
				logger.Warn("item failed", "source_id", o.SourceID, "error", o.Err)
			}
			if completed%100 == 0 || completed == len(items) {
				logger.Info("progress", "completed", completed, "total", len(items))
			}
		},
	})

	agg, runErr := orch.Run(ctx, items, cfg.Generation.Params())
	if agg == nil {
		return nil, runErr
	}
	if runErr != nil && !errors.Is(runErr, domain.ErrBatchCancelled) {
		return nil, runErr
	}

	// The caller's context may already be cancelled; the write must still
	// happen for the partial dataset to be kept.
	if err := sink.Write(context.WithoutCancel(ctx), agg); err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}

	logger.Info("run finished", "summary", agg.Summary())
	summary := domain.NewDatasetSummary(runID, agg)
	ref := sink.Ref()
	summary.Output = &ref
	return summary, runErr
}
