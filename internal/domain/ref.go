package domain

// Backend names a storage backend for corpora and datasets.
type Backend string

const (
	// BackendFile stores items or records in local JSON files.
	BackendFile Backend = "file"

	// BackendPostgres stores items or records in Postgres tables.
	BackendPostgres Backend = "postgres"
)

// CorpusRef references a corpus stored outside the workflow.
// Workflow inputs carry the reference instead of the items so history stays
// small no matter how large the corpus is. The activity that generates the
// dataset resolves the reference and loads the items itself.
type CorpusRef struct {
	// Source selects the backend the corpus is read from.
	Source Backend `json:"source" validate:"oneof=file postgres"`

	// Path is the JSON or JSON Lines file for the file backend.
	Path string `json:"path,omitempty" validate:"required_if=Source file"`

	// Table is the reviews table for the postgres backend.
	Table string `json:"table,omitempty" validate:"required_if=Source postgres"`

	// Limit caps the number of items loaded. Zero loads all.
	Limit int `json:"limit,omitempty" validate:"min=0"`
}

// Validate checks that the reference names a backend and a location for it.
func (r CorpusRef) Validate() error { return validate.Struct(r) }

// IsZero reports whether the reference has no value set.
func (r CorpusRef) IsZero() bool { return r == CorpusRef{} }

// DatasetRef references a persisted dataset. It is what the workflow
// returns in place of the records themselves.
type DatasetRef struct {
	// Sink is the backend the dataset was written to.
	Sink Backend `json:"sink"`

	// Location is the records file or table.
	Location string `json:"location"`

	// FailuresLocation is the file or table holding item failures.
	FailuresLocation string `json:"failures_location,omitempty"`

	// RunID scopes the rows belonging to this run when Location is shared.
	RunID string `json:"run_id,omitempty"`
}

// IsZero reports whether the reference has no value set.
func (r DatasetRef) IsZero() bool { return r == DatasetRef{} }
