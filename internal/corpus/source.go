// Package corpus loads the items a dataset is generated from.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-evalset/internal/domain"
)

// ErrInvalidCorpus indicates a corpus that cannot be turned into items.
var ErrInvalidCorpus = fmt.Errorf("%w: invalid corpus", domain.ErrConfiguration)

// Source loads corpus items in their canonical order.
type Source interface {
	Load(ctx context.Context) ([]domain.CorpusItem, error)
}

// SourceFactory resolves a corpus reference into a Source. Activities receive
// references rather than items and use a factory to load them where they run.
type SourceFactory func(ref domain.CorpusRef) (Source, error)

// FileSource reads items from a JSON array or JSON Lines file of objects.
// Each object's "id" (string or number) becomes the item ID and every other
// scalar value becomes a field. Nested values are skipped.
type FileSource struct {
	Path string

	// Limit caps the number of items returned. Zero returns all.
	Limit int

	logger *slog.Logger
}

// NewFileSource creates a source for path.
func NewFileSource(path string, limit int) *FileSource {
	return &FileSource{
		Path:   path,
		Limit:  limit,
		logger: slog.Default().With("component", "corpus"),
	}
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) ([]domain.CorpusItem, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrInvalidCorpus, s.Path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var items []domain.CorpusItem
	if isJSONArray(r, s.Path) {
		items, err = s.readArray(ctx, r)
	} else {
		items, err = s.readLines(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	if err := domain.CheckUniqueIDs(items); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCorpus, s.Path, err)
	}

	s.logger.InfoContext(ctx, "corpus loaded", "path", s.Path, "items", len(items))
	return items, nil
}

// isJSONArray peeks past leading whitespace for '['. JSON Lines extensions
// are trusted without peeking.
func isJSONArray(r *bufio.Reader, path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return false
	}
	for n := 1; ; n++ {
		b, err := r.Peek(n)
		if err != nil || len(b) < n {
			return false
		}
		c := b[n-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return c == '['
	}
}

func (s *FileSource) readArray(ctx context.Context, r io.Reader) ([]domain.CorpusItem, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}

	var items []domain.CorpusItem
	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrInvalidCorpus, i, err)
		}
		item, err := itemFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, item)
		if s.Limit > 0 && len(items) == s.Limit {
			return items, nil
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	return items, nil
}

func (s *FileSource) readLines(ctx context.Context, r io.Reader) ([]domain.CorpusItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var items []domain.CorpusItem
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidCorpus, line, err)
		}
		item, err := itemFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
		if s.Limit > 0 && len(items) == s.Limit {
			return items, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	return items, nil
}

// itemFromObject converts a decoded JSON object into an item.
func itemFromObject(obj map[string]any) (domain.CorpusItem, error) {
	id, ok := scalarString(obj["id"])
	if !ok || strings.TrimSpace(id) == "" {
		return domain.CorpusItem{}, fmt.Errorf("%w: missing or non-scalar id", ErrInvalidCorpus)
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		if k == "id" {
			continue
		}
		if s, ok := scalarString(v); ok {
			fields[k] = s
		}
	}
	return domain.CorpusItem{ID: id, Fields: fields}, nil
}

// scalarString renders strings, numbers, and booleans. Null and nested
// values report false.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		if x {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// Static is a Source over items already in memory.
type Static []domain.CorpusItem

// Load implements Source.
func (s Static) Load(context.Context) ([]domain.CorpusItem, error) {
	if err := domain.CheckUniqueIDs(s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	return s, nil
}
