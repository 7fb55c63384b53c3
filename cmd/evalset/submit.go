package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/ahrav/go-evalset/internal/config"
	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/workflow"
)

// submitCommand starts a DatasetWorkflow for the configured corpus. The
// request references the corpus; the worker loads it.
func submitCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "configuration file path")
		runID      = fs.String("run-id", "", "run identifier (default: random)")
		wait       = fs.Bool("wait", false, "wait for the workflow and print its summary")
	)
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	req, err := buildRequest(cfg, *runID)
	if err != nil {
		fmt.Fprintf(stderr, "evalset submit: %v\n", err)
		return exitCode(err)
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create Temporal client: %v\n", err)
		return exitFailure
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "evalset-" + req.RunID,
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflow.DatasetWorkflow, req)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start workflow: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "started workflow %s (run %s)\n", run.GetID(), run.GetRunID())

	if !*wait {
		return exitOK
	}
	var summary domain.DatasetSummary
	if err := run.Get(ctx, &summary); err != nil {
		fmt.Fprintf(stderr, "Workflow failed: %v\n", err)
		return exitCode(err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
	return exitOK
}

// buildRequest builds a validated request referencing the configured corpus.
// File paths are made absolute so a worker started elsewhere on the same file
// system resolves them the same way.
func buildRequest(cfg *config.Config, runID string) (domain.DatasetRequest, error) {
	ref := cfg.Corpus.Ref()
	if ref.Source == domain.BackendFile && ref.Path != "" {
		abs, err := filepath.Abs(ref.Path)
		if err != nil {
			return domain.DatasetRequest{}, fmt.Errorf("%w: corpus path: %w", domain.ErrInvalidRequest, err)
		}
		ref.Path = abs
	}

	req := domain.DatasetRequest{
		RunID:        runID,
		Corpus:       ref,
		Params:       cfg.Generation.Params(),
		Concurrency:  cfg.Batch.Concurrency,
		RequireItems: cfg.Batch.RequireItems,
	}
	if err := req.Validate(); err != nil {
		return domain.DatasetRequest{}, err
	}
	return req, nil
}
