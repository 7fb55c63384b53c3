// Package generation implements the Temporal activity that generates an
// evaluation dataset from a referenced corpus and persists it.
package generation

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Application error types reported to the workflow.
const (
	ErrTypeConfiguration = "Configuration"
	ErrTypeCancelled     = "Cancelled"
	ErrTypeInternal      = "Internal"
	ErrTypeLoad          = "Load"
	ErrTypePersist       = "Persist"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a Temporal retryable application error.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationError(msg, tag, cause)
}

// classifyRunError maps an orchestrator error to an activity error.
// Configuration errors never succeed on retry.
func classifyRunError(err error) error {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return nonRetryable(ErrTypeConfiguration, err, "invalid dataset request")
	case errors.Is(err, domain.ErrBatchCancelled):
		return retryable(ErrTypeCancelled, err, "dataset generation cancelled")
	default:
		return retryable(ErrTypeInternal, err, "dataset generation failed")
	}
}
