// Package events provides the envelope and sink used to publish dataset
// lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by dataset generation.
const (
	TypeItemFailed       = "dataset.item_failed"
	TypeDatasetGenerated = "dataset.generated"
	TypeDatasetPersisted = "dataset.persisted"
)

// Version is the envelope schema version.
const Version = "1.0.0"

// Envelope wraps a domain event payload with routing and idempotency metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event, e.g. "dataset.item_failed".
	Type string `json:"type"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across retries of the same emission so sinks
	// can drop duplicates.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID correlate the event with a workflow execution.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and fills the envelope metadata. The
// idempotency key is derived from the run, type and key so a retried
// emission produces the same key.
func NewEnvelope(eventType, source, runID, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        Version,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: uuid.NewSHA1(uuid.NameSpaceOID, []byte(runID+"|"+eventType+"|"+key)).String(),
		RunID:          runID,
		Payload:        raw,
	}, nil
}

// EventSink receives emitted events. Append should return quickly; callers
// treat failures as non-fatal.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"type", e.Type,
		"source", e.Source,
		"run_id", e.RunID,
		"idempotency_key", e.IdempotencyKey,
		"payload", string(e.Payload))
	return nil
}

// MemorySink keeps events in memory, dropping repeated idempotency keys.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Envelope
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (s *MemorySink) Append(_ context.Context, e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[e.IdempotencyKey]; dup {
		return nil
	}
	s.seen[e.IdempotencyKey] = struct{}{}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the stored events in append order.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.events...)
}

// OfType returns stored events with the given type.
func (s *MemorySink) OfType(eventType string) []Envelope {
	var out []Envelope
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
