package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the class of all configuration errors. Configuration
// errors are fatal and are reported before any task is scheduled.
var ErrConfiguration = errors.New("configuration error")

// Configuration errors. Each wraps ErrConfiguration.
var (
	// ErrInvalidConcurrency indicates a concurrency ceiling below 1.
	ErrInvalidConcurrency = fmt.Errorf("%w: concurrency must be at least 1", ErrConfiguration)

	// ErrEmptyCorpus indicates an empty item list where items are required.
	ErrEmptyCorpus = fmt.Errorf("%w: corpus is empty", ErrConfiguration)

	// ErrInvalidParams indicates generation params outside their bounds.
	ErrInvalidParams = fmt.Errorf("%w: invalid generation params", ErrConfiguration)

	// ErrInvalidConfig indicates an invalid configuration file or value.
	ErrInvalidConfig = fmt.Errorf("%w: invalid config", ErrConfiguration)

	// ErrInvalidRequest indicates a dataset request with invalid data.
	ErrInvalidRequest = fmt.Errorf("%w: invalid dataset request", ErrConfiguration)

	// ErrDuplicateItemID indicates two corpus items share an ID. Records and
	// failures are keyed by source ID, so a repeated ID would make attribution
	// ambiguous and collide on persistence.
	ErrDuplicateItemID = fmt.Errorf("%w: duplicate corpus item id", ErrConfiguration)
)

var (
	// ErrGeneratorPanic indicates the generator panicked while handling an item.
	ErrGeneratorPanic = errors.New("generator panicked")

	// ErrUnknownFailure stands in for a failure reported without a cause.
	ErrUnknownFailure = errors.New("unknown failure")

	// ErrBatchCancelled indicates the batch run was cancelled externally.
	// The accompanying aggregate is complete but may hold cancellation failures.
	ErrBatchCancelled = errors.New("batch cancelled")

	// ErrSlotLeak indicates limiter slots were still held after every task
	// finished. It means slot release is broken and should never occur.
	ErrSlotLeak = errors.New("concurrency slots leaked")
)

// FailureKind categorizes collaborator failures for diagnostics.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimit       FailureKind = "rate_limit"
	FailureNetwork         FailureKind = "network"
	FailureProvider        FailureKind = "provider_unavailable"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureAuth            FailureKind = "authentication"
	FailurePanic           FailureKind = "panic"
	FailureCancelled       FailureKind = "cancelled"
	FailureUnknown         FailureKind = "unknown"
)

// CollaboratorError is a generator failure scoped to one corpus item. It is
// recovered at the task boundary and surfaced as data in a failed outcome.
type CollaboratorError struct {
	SourceID string
	Kind     FailureKind
	Err      error
}

// Error returns the failure with its item and kind.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("item %s: %s: %v", e.SourceID, e.Kind, e.Err)
}

// Unwrap returns the underlying generator error.
func (e *CollaboratorError) Unwrap() error { return e.Err }
