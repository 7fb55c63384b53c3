package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ahrav/go-evalset/internal/dataset"
	"github.com/ahrav/go-evalset/internal/domain"
)

// RecordSink writes one run's records to a table and its failures to a
// companion "<table>_failures" table. Rewriting a run replaces its rows, so
// retried writes are idempotent.
type RecordSink struct {
	store *Store
	table string
	runID string
}

// RecordSink returns a dataset sink for runID writing into table.
func (s *Store) RecordSink(table, runID string) *RecordSink {
	return &RecordSink{store: s, table: table, runID: runID}
}

// SinkFactory returns a dataset.SinkFactory writing into table.
func (s *Store) SinkFactory(table string) dataset.SinkFactory {
	return func(runID string) (dataset.Sink, error) {
		if _, err := tableIdent(table); err != nil {
			return nil, err
		}
		return s.RecordSink(table, runID), nil
	}
}

// EnsureSchema creates the record and failure tables if they do not exist.
func (r *RecordSink) EnsureSchema(ctx context.Context) error {
	records, err := tableIdent(r.table)
	if err != nil {
		return err
	}
	failures := withSuffix(records, "_failures")

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  run_id     text NOT NULL,
  position   integer NOT NULL,
  question   text NOT NULL,
  answer     text NOT NULL,
  source_id  text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (source_id);
CREATE TABLE IF NOT EXISTS %[3]s (
  run_id     text NOT NULL,
  source_id  text NOT NULL,
  cause      text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (run_id, source_id)
);`,
		records.Sanitize(),
		pgx.Identifier{records[len(records)-1] + "_source_id_idx"}.Sanitize(),
		failures.Sanitize())

	_, err = r.store.pool.Exec(ctx, ddl)
	return err
}

// Ref implements dataset.Sink. Rows for the run are selected by RunID.
func (r *RecordSink) Ref() domain.DatasetRef {
	return domain.DatasetRef{
		Sink:             domain.BackendPostgres,
		Location:         r.table,
		FailuresLocation: r.table + "_failures",
		RunID:            r.runID,
	}
}

// Write implements dataset.Sink.
func (r *RecordSink) Write(ctx context.Context, agg *domain.DatasetAggregate) error {
	if agg == nil {
		return dataset.ErrNilAggregate
	}
	if r.runID == "" {
		return errors.New("run id is required")
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	records, _ := tableIdent(r.table)
	failures := withSuffix(records, "_failures")

	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range []pgx.Identifier{records, failures} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+t.Sanitize()+" WHERE run_id = $1", r.runID); err != nil {
			return fmt.Errorf("clear previous rows: %w", err)
		}
	}

	n, err := tx.CopyFrom(ctx, records,
		[]string{"run_id", "position", "question", "answer", "source_id"},
		pgx.CopyFromSlice(len(agg.Records), func(i int) ([]any, error) {
			rec := agg.Records[i]
			return []any{r.runID, i, rec.Question, rec.Answer, rec.SourceID}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}

	f, err := tx.CopyFrom(ctx, failures,
		[]string{"run_id", "source_id", "cause"},
		pgx.CopyFromSlice(len(agg.Failures), func(i int) ([]any, error) {
			fail := agg.Failures[i]
			return []any{r.runID, fail.SourceID, fail.Cause}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy failures: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.store.logger.InfoContext(ctx, "dataset written",
		"table", r.table, "run_id", r.runID, "records", n, "failures", f)
	return nil
}

// ReadRecords returns a run's records in write order.
func (r *RecordSink) ReadRecords(ctx context.Context) ([]domain.EvalRecord, error) {
	records, err := tableIdent(r.table)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.pool.Query(ctx,
		"SELECT question, answer, source_id FROM "+records.Sanitize()+" WHERE run_id = $1 ORDER BY position",
		r.runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[domain.EvalRecord])
}

var _ dataset.Sink = (*RecordSink)(nil)
