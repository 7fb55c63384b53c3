package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ahrav/go-evalset/internal/corpus"
	"github.com/ahrav/go-evalset/internal/domain"
)

// ReviewSource loads corpus items from a table with an id column and a jsonb
// fields column. Rows are returned in id order.
type ReviewSource struct {
	store *Store
	table string
	limit int
}

// ReviewSource returns a corpus source over table. A positive limit caps the
// number of rows read.
func (s *Store) ReviewSource(table string, limit int) *ReviewSource {
	return &ReviewSource{store: s, table: table, limit: limit}
}

// Load implements corpus.Source.
func (r *ReviewSource) Load(ctx context.Context) ([]domain.CorpusItem, error) {
	ident, err := tableIdent(r.table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", corpus.ErrInvalidCorpus, err)
	}

	query := "SELECT id::text, fields FROM " + ident.Sanitize() + " ORDER BY id"
	args := []any{}
	if r.limit > 0 {
		query += " LIMIT $1"
		args = append(args, r.limit)
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var items []domain.CorpusItem
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %s: %w", corpus.ErrInvalidCorpus, id, err)
		}
		items = append(items, domain.CorpusItem{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if err := domain.CheckUniqueIDs(items); err != nil {
		return nil, fmt.Errorf("%w: table %s: %w", corpus.ErrInvalidCorpus, r.table, err)
	}

	r.store.logger.InfoContext(ctx, "corpus loaded", "table", r.table, "items", len(items))
	return items, nil
}

// decodeFields converts a jsonb object into string fields. Scalars are kept,
// nulls and nested values are dropped.
func decodeFields(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		if string(v) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			fields[k] = n.String()
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			fields[k] = strconv.FormatBool(b)
		}
	}
	return fields, nil
}

var _ corpus.Source = (*ReviewSource)(nil)
