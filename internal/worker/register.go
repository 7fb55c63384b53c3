package worker

import (
	"time"

	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-evalset/internal/corpus"
	"github.com/ahrav/go-evalset/internal/dataset"
	"github.com/ahrav/go-evalset/internal/generation"
	"github.com/ahrav/go-evalset/internal/llm"
	"github.com/ahrav/go-evalset/internal/workflow"
	"github.com/ahrav/go-evalset/pkg/activity"
	"github.com/ahrav/go-evalset/pkg/events"
)

// Registrar is the subset of a Temporal worker used for registration.
type Registrar interface {
	RegisterWorkflow(w any)
	RegisterActivity(a any)
}

var _ Registrar = (sdkworker.Worker)(nil)

// RegisterAll registers the dataset workflow and its activity. It must be
// called once, before the worker starts. sources resolves the corpus
// references requests carry and sinks opens each run's output. A nil event
// sink logs events.
func RegisterAll(
	w Registrar,
	gen llm.Generator,
	sources corpus.SourceFactory,
	sinks dataset.SinkFactory,
	taskTimeout time.Duration,
	eventSink events.EventSink,
) *generation.Activities {
	if eventSink == nil {
		eventSink = events.NewLogSink(nil)
	}
	acts := generation.NewActivities(activity.NewBaseActivities(eventSink), gen, sources, sinks, taskTimeout)

	w.RegisterWorkflow(workflow.DatasetWorkflow)
	w.RegisterActivity(acts.GenerateDataset)
	return acts
}
