// Package domain provides the core types for bootstrapping retrieval evaluation
// datasets. It defines corpus items, generation parameters, evaluation records,
// per-item task outcomes, and the dataset aggregate handed to persistence.
// Types carry validation tags so every boundary (CLI, activity, orchestrator)
// rejects malformed input the same way.
package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Default generation values.
const (
	DefaultPairsPerItem = 3
	MaxPairsPerItem     = 20
	DefaultConcurrency  = 10
)

// CorpusItem is one unit of source content, such as a product review.
// The ID is opaque to the orchestrator; Fields are consumed only by the
// generator. Items are treated as immutable once loaded.
type CorpusItem struct {
	// ID identifies the item and becomes the SourceID of every record
	// generated from it.
	ID string `json:"id" validate:"required"`

	// Fields holds the item's content, e.g. "title", "review", "rating".
	Fields map[string]string `json:"fields,omitempty"`
}

// Validate checks that the item carries a usable identifier.
func (c *CorpusItem) Validate() error { return validate.Struct(c) }

// Text renders the item's fields deterministically, one "key: value" line per
// field in sorted key order. Used for prompts and cache keys.
func (c CorpusItem) Text() string {
	keys := slices.Sorted(maps.Keys(c.Fields))

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, c.Fields[k])
	}
	return b.String()
}

// CheckUniqueIDs reports the first repeated item ID in items. The error wraps
// ErrDuplicateItemID and names both positions.
func CheckUniqueIDs(items []CorpusItem) error {
	seen := make(map[string]int, len(items))
	for i, it := range items {
		if first, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: id %q appears at items %d and %d", ErrDuplicateItemID, it.ID, first, i)
		}
		seen[it.ID] = i
	}
	return nil
}

// Clone returns a copy whose Fields map does not alias the original.
func (c CorpusItem) Clone() CorpusItem {
	return CorpusItem{ID: c.ID, Fields: cloneStringMap(c.Fields)}
}

// GenerationParams controls what the generator is asked to produce per item.
type GenerationParams struct {
	// PairsPerItem is the number of question/answer pairs requested per item.
	PairsPerItem int `json:"pairs_per_item" validate:"min=1,max=20"`

	// ExampleQuestions optionally guide the style of generated questions.
	ExampleQuestions []string `json:"example_questions,omitempty" validate:"dive,required"`
}

// DefaultGenerationParams returns params requesting DefaultPairsPerItem pairs.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{PairsPerItem: DefaultPairsPerItem}
}

// Validate checks the params against their bounds.
func (p *GenerationParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}
