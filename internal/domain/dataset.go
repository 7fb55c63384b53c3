package domain

import "fmt"

// DatasetRequest asks for an evaluation dataset to be generated from a corpus.
// It is the input of the dataset workflow. The corpus travels by reference,
// so the request stays the same size for ten items or ten million.
type DatasetRequest struct {
	// RunID identifies the run in persisted output and events.
	RunID string `json:"run_id" validate:"required"`

	// Corpus locates the ordered corpus. Record order in the result follows it.
	Corpus CorpusRef `json:"corpus"`

	// Params controls generation for every item.
	Params GenerationParams `json:"params"`

	// Concurrency is the maximum number of generator calls in flight.
	Concurrency int `json:"concurrency" validate:"min=1"`

	// RequireItems makes an empty corpus a configuration error once loaded.
	RequireItems bool `json:"require_items"`
}

// Validate checks the request structure. Errors wrap ErrInvalidRequest,
// ErrInvalidConcurrency, or ErrInvalidParams. Checks that need the items,
// such as emptiness and duplicate IDs, run after the corpus is loaded.
func (r *DatasetRequest) Validate() error {
	if r.Concurrency < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidConcurrency, r.Concurrency)
	}
	if err := r.Params.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// GenerateDatasetInput is the input of the GenerateDataset activity.
type GenerateDatasetInput struct {
	Request DatasetRequest `json:"request"`
}

// GenerateDatasetOutput is the output of the GenerateDataset activity.
// The records stay in the sink; only the summary and its reference return.
type GenerateDatasetOutput struct {
	RunID     string          `json:"run_id"`
	Summary   *DatasetSummary `json:"summary"`
	LatencyMs int64           `json:"latency_ms"`
}

// MaxSummaryFailedIDs bounds the failed IDs listed in a summary. The full
// list is persisted with the failures.
const MaxSummaryFailedIDs = 100

// DatasetSummary is the result of the dataset workflow.
type DatasetSummary struct {
	RunID   string `json:"run_id"`
	Items   int    `json:"items"`
	Records int    `json:"records"`
	Failed  int    `json:"failed"`

	// FailedIDs lists up to MaxSummaryFailedIDs failed items in corpus order.
	FailedIDs []string `json:"failed_ids,omitempty"`

	// Output locates the persisted records. It is nil when nothing was written.
	Output *DatasetRef `json:"output,omitempty"`
}

// NewDatasetSummary builds a summary from a completed aggregate.
func NewDatasetSummary(runID string, agg *DatasetAggregate) *DatasetSummary {
	ids := agg.FailedIDs()
	if len(ids) > MaxSummaryFailedIDs {
		ids = ids[:MaxSummaryFailedIDs]
	}
	return &DatasetSummary{
		RunID:     runID,
		Items:     agg.Outcomes,
		Records:   len(agg.Records),
		Failed:    len(agg.Failures),
		FailedIDs: ids,
	}
}
