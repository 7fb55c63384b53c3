package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/generation"
)

// Activity timeouts. Generation heartbeats after every item, so the
// heartbeat timeout bounds corpus loading, the slowest single item including
// its retries, and the final sink write.
const (
	generateStartToClose = 2 * time.Hour
	generateHeartbeat    = 5 * time.Minute
)

// nonRetryableTypes are application error types that activities use for
// failures a retry cannot fix.
var nonRetryableTypes = []string{generation.ErrTypeConfiguration}

// DatasetWorkflow generates and persists a dataset for req. Item failures
// do not fail the workflow; they are reported in the summary.
//
// Workflow history only ever holds the request, which references the corpus,
// and the summary, which references the written dataset. Items and records
// stay inside the activity, so history size does not grow with the corpus.
func DatasetWorkflow(ctx workflow.Context, req domain.DatasetRequest) (*domain.DatasetSummary, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "dataset.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid dataset request",
			"Validation",
			err,
		)
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("Dataset workflow started",
		"run_id", req.RunID,
		"corpus_source", string(req.Corpus.Source),
		"corpus_limit", req.Corpus.Limit)

	retry := &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        time.Minute,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: nonRetryableTypes,
	}

	var acts *generation.Activities

	genCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: generateStartToClose,
		HeartbeatTimeout:    generateHeartbeat,
		RetryPolicy:         retry,
	})
	var generated domain.GenerateDatasetOutput
	if err := workflow.ExecuteActivity(genCtx, acts.GenerateDataset,
		domain.GenerateDatasetInput{Request: req}).Get(genCtx, &generated); err != nil {
		return nil, err
	}

	summary := generated.Summary
	if summary == nil {
		summary = domain.NewDatasetSummary(req.RunID, domain.NewDatasetAggregate())
	}
	logger.Info("Dataset workflow completed",
		"run_id", req.RunID,
		"records", summary.Records,
		"failed", summary.Failed)
	return summary, nil
}
