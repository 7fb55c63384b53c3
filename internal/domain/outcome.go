package domain

import "fmt"

// TaskState is the lifecycle state of one item's task. Succeeded and Failed
// are terminal; there are no transitions out of them.
type TaskState uint8

const (
	// TaskPending means the task is scheduled but holds no limiter slot.
	TaskPending TaskState = iota

	// TaskRunning means the task holds a slot and is calling the generator.
	TaskRunning

	// TaskSucceeded means the generator returned pairs for the item.
	TaskSucceeded

	// TaskFailed means the task ended without records for the item.
	TaskFailed
)

// String returns the string representation of a TaskState.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool { return s == TaskSucceeded || s == TaskFailed }

// TaskOutcome is the terminal result of one item's task: either a list of
// records (Succeeded) or a failure cause (Failed). Exactly one outcome is
// produced per scheduled item.
type TaskOutcome struct {
	// Index is the item's position in the submitted corpus.
	Index int

	// SourceID is the ID of the item the task ran for.
	SourceID string

	// State is TaskSucceeded or TaskFailed.
	State TaskState

	// Records holds the stamped records on success, nil on failure.
	Records []EvalRecord

	// Err holds the failure cause on failure, nil on success.
	Err error
}

// Success builds a succeeded outcome.
func Success(index int, sourceID string, records []EvalRecord) TaskOutcome {
	return TaskOutcome{Index: index, SourceID: sourceID, State: TaskSucceeded, Records: records}
}

// Failure builds a failed outcome. A nil cause is replaced so a failed
// outcome always carries an error.
func Failure(index int, sourceID string, cause error) TaskOutcome {
	if cause == nil {
		cause = ErrUnknownFailure
	}
	return TaskOutcome{Index: index, SourceID: sourceID, State: TaskFailed, Err: cause}
}

// Succeeded reports whether the outcome is the success variant.
func (o TaskOutcome) Succeeded() bool { return o.State == TaskSucceeded }

// ItemFailure records an item that produced no records and why.
type ItemFailure struct {
	SourceID string `json:"source_id"`
	Cause    string `json:"cause"`

	// Err keeps the original error for in-process diagnostics. It is not
	// serialized.
	Err error `json:"-"`
}

// DatasetAggregate is the folded result of a batch run: all records from
// successful tasks in corpus order, plus one failure entry per failed item.
type DatasetAggregate struct {
	Records  []EvalRecord  `json:"records"`
	Failures []ItemFailure `json:"failures"`

	// Outcomes counts the task outcomes folded into the aggregate. It equals
	// the number of submitted items for a completed run.
	Outcomes int `json:"outcomes"`
}

// NewDatasetAggregate returns an empty aggregate with non-nil slices so it
// serializes as empty arrays rather than null.
func NewDatasetAggregate() *DatasetAggregate {
	return &DatasetAggregate{
		Records:  []EvalRecord{},
		Failures: []ItemFailure{},
	}
}

// Add folds one outcome into the aggregate.
func (a *DatasetAggregate) Add(o TaskOutcome) {
	a.Outcomes++
	if o.Succeeded() {
		a.Records = append(a.Records, o.Records...)
		return
	}
	cause := ErrUnknownFailure.Error()
	if o.Err != nil {
		cause = o.Err.Error()
	}
	a.Failures = append(a.Failures, ItemFailure{SourceID: o.SourceID, Cause: cause, Err: o.Err})
}

// Succeeded returns the number of items that produced an outcome without failing.
func (a *DatasetAggregate) Succeeded() int { return a.Outcomes - len(a.Failures) }

// SourceIDs returns the distinct source IDs present in Records, in first-seen order.
func (a *DatasetAggregate) SourceIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, r := range a.Records {
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		ids = append(ids, r.SourceID)
	}
	return ids
}

// FailedIDs returns the source IDs of failed items in aggregate order.
func (a *DatasetAggregate) FailedIDs() []string {
	ids := make([]string, 0, len(a.Failures))
	for _, f := range a.Failures {
		ids = append(ids, f.SourceID)
	}
	return ids
}

// Summary returns a one-line human-readable description of the aggregate.
func (a *DatasetAggregate) Summary() string {
	return fmt.Sprintf("%d records, %d items succeeded, %d failed",
		len(a.Records), a.Succeeded(), len(a.Failures))
}
