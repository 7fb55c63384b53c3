// Package dataset persists generated evaluation datasets.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-evalset/internal/domain"
)

// ErrNilAggregate is returned when a sink is handed no aggregate.
var ErrNilAggregate = errors.New("nil dataset aggregate")

// ErrRunIDRequired is returned when a run-scoped sink is opened without a run ID.
var ErrRunIDRequired = errors.New("run id is required")

// Sink persists a completed aggregate.
type Sink interface {
	Write(ctx context.Context, agg *domain.DatasetAggregate) error

	// Ref locates what Write persists so callers can report it without
	// carrying the records.
	Ref() domain.DatasetRef
}

// SinkFactory returns a sink for one run.
type SinkFactory func(runID string) (Sink, error)

// FileSinkFactory returns a factory that always writes to the same files.
// Each run replaces the previous run's output. It suits one-shot CLI runs.
func FileSinkFactory(path, failuresPath string) SinkFactory {
	return func(string) (Sink, error) {
		return NewJSONFileSink(path, failuresPath), nil
	}
}

// RunIDPlaceholder is replaced by the run ID in run-scoped output paths.
const RunIDPlaceholder = "{run_id}"

// RunScopedFileSinkFactory returns a factory that gives every run its own
// files, so concurrent or successive runs on one worker never overwrite each
// other. See RunScopedPath for how paths are derived.
func RunScopedFileSinkFactory(path, failuresPath string) SinkFactory {
	return func(runID string) (Sink, error) {
		if runID == "" {
			return nil, ErrRunIDRequired
		}
		scopedFailures := ""
		if failuresPath != "" {
			scopedFailures = RunScopedPath(failuresPath, runID)
		}
		return NewJSONFileSink(RunScopedPath(path, runID), scopedFailures), nil
	}
}

// RunScopedPath returns path with the run ID substituted for
// RunIDPlaceholder, or inserted before the extension when the placeholder is
// absent: "out/dataset.json" becomes "out/dataset.<run_id>.json". Characters
// outside [A-Za-z0-9._-] in the run ID are replaced with '_' so the ID cannot
// escape the output directory.
func RunScopedPath(path, runID string) string {
	safe := sanitizeRunID(runID)
	if strings.Contains(path, RunIDPlaceholder) {
		return strings.ReplaceAll(path, RunIDPlaceholder, safe)
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + safe + ext
}

// sanitizeRunID keeps run IDs usable as a path element. An ID made only of
// dots would name a directory, so its dots are replaced too.
func sanitizeRunID(runID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, runID)
	if strings.Trim(safe, ".") == "" {
		return strings.Repeat("_", len(safe))
	}
	return safe
}

// JSONFileSink writes records and failures to two JSON files. Records go to
// Path as an indented array, or one object per line when Path ends in
// ".jsonl". Failures go to FailuresPath as an array of {source_id, cause}.
// Each file is replaced atomically.
type JSONFileSink struct {
	Path         string
	FailuresPath string

	logger *slog.Logger
}

// NewJSONFileSink creates a sink. An empty failuresPath derives one from path,
// e.g. "out/dataset.json" becomes "out/dataset.failures.json".
func NewJSONFileSink(path, failuresPath string) *JSONFileSink {
	if failuresPath == "" {
		ext := filepath.Ext(path)
		failuresPath = strings.TrimSuffix(path, ext) + ".failures.json"
	}
	return &JSONFileSink{
		Path:         path,
		FailuresPath: failuresPath,
		logger:       slog.Default().With("component", "dataset_sink"),
	}
}

// Ref implements Sink.
func (s *JSONFileSink) Ref() domain.DatasetRef {
	return domain.DatasetRef{
		Sink:             domain.BackendFile,
		Location:         s.Path,
		FailuresLocation: s.FailuresPath,
	}
}

// Write implements Sink.
func (s *JSONFileSink) Write(ctx context.Context, agg *domain.DatasetAggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := encodeRecords(s.Path, agg.Records)
	if err != nil {
		return err
	}
	failures, err := json.MarshalIndent(nonNil(agg.Failures), "", "  ")
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}

	if err := writeAtomic(s.Path, records); err != nil {
		return err
	}
	if err := writeAtomic(s.FailuresPath, append(failures, '\n')); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "dataset written",
		"path", s.Path,
		"records", len(agg.Records),
		"failures_path", s.FailuresPath,
		"failures", len(agg.Failures))
	return nil
}

func encodeRecords(path string, records []domain.EvalRecord) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		var b bytes.Buffer
		enc := json.NewEncoder(&b)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return nil, fmt.Errorf("encode record: %w", err)
			}
		}
		return b.Bytes(), nil
	}

	out, err := json.MarshalIndent(nonNil(records), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return append(out, '\n'), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// ReadRecords loads records written by JSONFileSink from path.
func ReadRecords(path string) ([]domain.EvalRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		var records []domain.EvalRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return records, nil
	}

	var records []domain.EvalRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var r domain.EvalRecord
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		records = append(records, r)
	}
	return records, nil
}
var _ Sink = (*JSONFileSink)(nil)
