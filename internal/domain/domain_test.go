package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusItemText(t *testing.T) {
	item := CorpusItem{ID: "r1", Fields: map[string]string{
		"title":  "Great kettle",
		"rating": "5",
		"review": "Boils fast.",
	}}

	assert.Equal(t, "rating: 5\nreview: Boils fast.\ntitle: Great kettle", item.Text())
	assert.Equal(t, item.Text(), item.Text(), "rendering is deterministic")
	assert.Empty(t, CorpusItem{ID: "x"}.Text())
}

func TestCorpusItemCloneDoesNotAlias(t *testing.T) {
	item := CorpusItem{ID: "r1", Fields: map[string]string{"review": "a"}}
	clone := item.Clone()
	clone.Fields["review"] = "b"
	assert.Equal(t, "a", item.Fields["review"])
	assert.Nil(t, CorpusItem{ID: "r2"}.Clone().Fields)
}

func TestCorpusItemValidate(t *testing.T) {
	assert.NoError(t, (&CorpusItem{ID: "a"}).Validate())
	assert.Error(t, (&CorpusItem{}).Validate())
}

func TestGenerationParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  GenerationParams
		wantErr bool
	}{
		{"default", DefaultGenerationParams(), false},
		{"max", GenerationParams{PairsPerItem: MaxPairsPerItem}, false},
		{"zero", GenerationParams{}, true},
		{"over max", GenerationParams{PairsPerItem: MaxPairsPerItem + 1}, true},
		{"examples", GenerationParams{PairsPerItem: 2, ExampleQuestions: []string{"Is it loud?"}}, false},
		{"blank example", GenerationParams{PairsPerItem: 2, ExampleQuestions: []string{""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStampPairs(t *testing.T) {
	pairs := []GeneratedPair{{"q1", "a1"}, {"q2", "a2"}}
	records := StampPairs("src", pairs)
	assert.Equal(t, []EvalRecord{
		{Question: "q1", Answer: "a1", SourceID: "src"},
		{Question: "q2", Answer: "a2", SourceID: "src"},
	}, records)

	empty := StampPairs("src", nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestEvalRecordJSON(t *testing.T) {
	b, err := json.Marshal(EvalRecord{Question: "q", Answer: "a", SourceID: "42"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":"q","answer":"a","source_id":"42"}`, string(b))
}

func TestTaskState(t *testing.T) {
	assert.Equal(t, "pending", TaskPending.String())
	assert.Equal(t, "running", TaskRunning.String())
	assert.Equal(t, "succeeded", TaskSucceeded.String())
	assert.Equal(t, "failed", TaskFailed.String())
	assert.Equal(t, "unknown", TaskState(42).String())

	assert.False(t, TaskPending.Terminal())
	assert.False(t, TaskRunning.Terminal())
	assert.True(t, TaskSucceeded.Terminal())
	assert.True(t, TaskFailed.Terminal())
}

func TestFailureWithoutCause(t *testing.T) {
	o := Failure(0, "a", nil)
	assert.False(t, o.Succeeded())
	assert.ErrorIs(t, o.Err, ErrUnknownFailure)
}

func TestDatasetAggregateAdd(t *testing.T) {
	agg := NewDatasetAggregate()
	agg.Add(Success(0, "A", StampPairs("A", []GeneratedPair{{"q", "a"}, {"q2", "a2"}})))
	agg.Add(Failure(1, "B", errors.New("boom")))
	agg.Add(Success(2, "C", StampPairs("C", nil)))

	assert.Equal(t, 3, agg.Outcomes)
	assert.Equal(t, 2, agg.Succeeded())
	assert.Len(t, agg.Records, 2)
	assert.Equal(t, []string{"A"}, agg.SourceIDs())
	assert.Equal(t, []string{"B"}, agg.FailedIDs())
	assert.Equal(t, "boom", agg.Failures[0].Cause)
	assert.Equal(t, "2 records, 2 items succeeded, 1 failed", agg.Summary())
}

func TestDatasetAggregateSourceIDs(t *testing.T) {
	agg := NewDatasetAggregate()
	agg.Records = []EvalRecord{
		{Question: "q1", SourceID: "B"},
		{Question: "q2", SourceID: "A"},
		{Question: "q3", SourceID: "B"},
		{Question: "q4", SourceID: "C"},
		{Question: "q5", SourceID: "A"},
	}
	assert.Equal(t, []string{"B", "A", "C"}, agg.SourceIDs())
	assert.Nil(t, NewDatasetAggregate().SourceIDs())
}

func TestCheckUniqueIDs(t *testing.T) {
	assert.NoError(t, CheckUniqueIDs(nil))
	assert.NoError(t, CheckUniqueIDs([]CorpusItem{{ID: "A"}, {ID: "B"}}))

	err := CheckUniqueIDs([]CorpusItem{{ID: "A"}, {ID: "B"}, {ID: "A"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateItemID)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), `id "A" appears at items 0 and 2`)
}

func TestDatasetAggregateJSON(t *testing.T) {
	b, err := json.Marshal(NewDatasetAggregate())
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[],"failures":[],"outcomes":0}`, string(b))

	agg := NewDatasetAggregate()
	agg.Add(Failure(0, "B", errors.New("boom")))
	b, err = json.Marshal(agg.Failures)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"source_id":"B","cause":"boom"}]`, string(b))
}

func TestCollaboratorError(t *testing.T) {
	cause := errors.New("bad json")
	err := &CollaboratorError{SourceID: "r9", Kind: FailureInvalidResponse, Err: cause}
	assert.Equal(t, "item r9: invalid_response: bad json", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestConfigurationErrorClass(t *testing.T) {
	for _, err := range []error{ErrInvalidConcurrency, ErrEmptyCorpus, ErrInvalidParams, ErrInvalidConfig, ErrInvalidRequest, ErrDuplicateItemID} {
		assert.ErrorIs(t, err, ErrConfiguration)
	}
	assert.NotErrorIs(t, ErrGeneratorPanic, ErrConfiguration)
}

func TestDatasetRequestValidate(t *testing.T) {
	valid := func() DatasetRequest {
		return DatasetRequest{
			RunID:       "run-1",
			Corpus:      CorpusRef{Source: BackendFile, Path: "reviews.jsonl"},
			Params:      DefaultGenerationParams(),
			Concurrency: 2,
		}
	}

	t.Run("valid", func(t *testing.T) {
		r := valid()
		assert.NoError(t, r.Validate())
	})

	t.Run("postgres corpus", func(t *testing.T) {
		r := valid()
		r.Corpus = CorpusRef{Source: BackendPostgres, Table: "reviews", Limit: 50}
		assert.NoError(t, r.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*DatasetRequest)
		want   error
	}{
		{"zero concurrency", func(r *DatasetRequest) { r.Concurrency = 0 }, ErrInvalidConcurrency},
		{"bad params", func(r *DatasetRequest) { r.Params.PairsPerItem = 0 }, ErrInvalidParams},
		{"missing run id", func(r *DatasetRequest) { r.RunID = "" }, ErrInvalidRequest},
		{"missing corpus", func(r *DatasetRequest) { r.Corpus = CorpusRef{} }, ErrInvalidRequest},
		{"unknown backend", func(r *DatasetRequest) { r.Corpus.Source = "s3" }, ErrInvalidRequest},
		{"file without path", func(r *DatasetRequest) { r.Corpus.Path = "" }, ErrInvalidRequest},
		{"postgres without table", func(r *DatasetRequest) { r.Corpus = CorpusRef{Source: BackendPostgres} }, ErrInvalidRequest},
		{"negative limit", func(r *DatasetRequest) { r.Corpus.Limit = -1 }, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDatasetRequestJSONCarriesNoItems(t *testing.T) {
	r := DatasetRequest{
		RunID:       "run-1",
		Corpus:      CorpusRef{Source: BackendPostgres, Table: "reviews"},
		Params:      DefaultGenerationParams(),
		Concurrency: 4,
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"run_id": "run-1",
		"corpus": {"source": "postgres", "table": "reviews"},
		"params": {"pairs_per_item": 3},
		"concurrency": 4,
		"require_items": false
	}`, string(b))
}

func TestRefIsZero(t *testing.T) {
	assert.True(t, CorpusRef{}.IsZero())
	assert.False(t, CorpusRef{Source: BackendFile, Path: "x"}.IsZero())
	assert.True(t, DatasetRef{}.IsZero())
	assert.False(t, DatasetRef{Sink: BackendFile, Location: "d.json"}.IsZero())
}

func TestNewDatasetSummary(t *testing.T) {
	agg := NewDatasetAggregate()
	agg.Add(Success(0, "A", StampPairs("A", []GeneratedPair{{"q", "a"}})))
	agg.Add(Failure(1, "B", errors.New("x")))

	s := NewDatasetSummary("run-7", agg)
	assert.Equal(t, &DatasetSummary{RunID: "run-7", Items: 2, Records: 1, Failed: 1, FailedIDs: []string{"B"}}, s)
}

func TestNewDatasetSummaryBoundsFailedIDs(t *testing.T) {
	agg := NewDatasetAggregate()
	for i := range MaxSummaryFailedIDs + 50 {
		agg.Add(Failure(i, fmt.Sprintf("r%d", i), errors.New("x")))
	}

	s := NewDatasetSummary("run-8", agg)
	assert.Equal(t, MaxSummaryFailedIDs+50, s.Failed)
	require.Len(t, s.FailedIDs, MaxSummaryFailedIDs)
	assert.Equal(t, "r0", s.FailedIDs[0])
	assert.Len(t, agg.FailedIDs(), MaxSummaryFailedIDs+50, "the aggregate keeps every id")
}
