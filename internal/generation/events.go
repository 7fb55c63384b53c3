package generation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ahrav/go-evalset/internal/domain"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
	"github.com/ahrav/go-evalset/pkg/activity"
	"github.com/ahrav/go-evalset/pkg/events"
)

const eventSource = "generation-activity"

type itemFailedEvent struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Cause    string `json:"cause"`
}

type datasetGeneratedEvent struct {
	Items     int      `json:"items"`
	Records   int      `json:"records"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
	LatencyMs int64    `json:"latency_ms"`
}

type datasetPersistedEvent struct {
	Records  int               `json:"records"`
	Failures int               `json:"failures"`
	Output   domain.DatasetRef `json:"output"`
}

// EventEmitter builds and emits dataset events.
type EventEmitter struct {
	base activity.BaseActivities
}

// NewEventEmitter creates an emitter over base.
func NewEventEmitter(base activity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitItemFailed emits dataset.item_failed for a failed outcome.
func (e *EventEmitter) EmitItemFailed(ctx context.Context, wfCtx activity.WorkflowContext, runID string, o domain.TaskOutcome) {
	kind := domain.FailureUnknown
	cause := domain.ErrUnknownFailure.Error()
	if o.Err != nil {
		kind = llmerrors.Classify(o.Err)
		cause = o.Err.Error()
	}
	e.emit(ctx, wfCtx, events.TypeItemFailed, runID, strconv.Itoa(o.Index), itemFailedEvent{
		SourceID: o.SourceID,
		Index:    o.Index,
		Kind:     string(kind),
		Cause:    cause,
	}, fmt.Sprintf("ItemFailed[%s]", o.SourceID))
}

// EmitDatasetGenerated emits dataset.generated once per completed run.
func (e *EventEmitter) EmitDatasetGenerated(
	ctx context.Context,
	wfCtx activity.WorkflowContext,
	runID string,
	agg *domain.DatasetAggregate,
	latencyMs int64,
) {
	e.emit(ctx, wfCtx, events.TypeDatasetGenerated, runID, "", datasetGeneratedEvent{
		Items:     agg.Outcomes,
		Records:   len(agg.Records),
		Failed:    len(agg.Failures),
		FailedIDs: agg.FailedIDs(),
		LatencyMs: latencyMs,
	}, "DatasetGenerated")
}

// EmitDatasetPersisted emits dataset.persisted after the sink write.
func (e *EventEmitter) EmitDatasetPersisted(
	ctx context.Context,
	wfCtx activity.WorkflowContext,
	runID string,
	summary *domain.DatasetSummary,
) {
	ev := datasetPersistedEvent{Records: summary.Records, Failures: summary.Failed}
	if summary.Output != nil {
		ev.Output = *summary.Output
	}
	e.emit(ctx, wfCtx, events.TypeDatasetPersisted, runID, "", ev, "DatasetPersisted")
}

func (e *EventEmitter) emit(
	ctx context.Context,
	wfCtx activity.WorkflowContext,
	eventType, runID, key string,
	payload any,
	description string,
) {
	envelope, err := events.NewEnvelope(eventType, eventSource, runID, key, payload)
	if err != nil {
		activity.SafeLogError(ctx, "Failed to build event", "event_type", eventType, "error", err)
		return
	}
	envelope.WorkflowID = wfCtx.WorkflowID
	e.base.EmitEventSafe(ctx, envelope, description)
}
