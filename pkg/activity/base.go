// Package activity provides shared infrastructure for Temporal activity
// implementations: workflow context extraction, logging and heartbeats that
// tolerate non-activity contexts, and best-effort event emission.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-evalset/pkg/events"
)

// WorkflowContext contains metadata extracted from the Temporal activity
// context. It gives activities one way to read workflow execution details,
// with placeholder values when the activity is invoked outside Temporal.
type WorkflowContext struct {
	// WorkflowID is the ID of the workflow that scheduled the activity.
	WorkflowID string

	// RunID is the Temporal run ID of that workflow execution.
	RunID string

	// ActivityID identifies the scheduled activity within the workflow.
	ActivityID string

	// Attempt starts at 1 and increases with every activity retry.
	Attempt int32
}

// BaseActivities provides common infrastructure for activity types.
// It handles event emission and context extraction in a way that works both
// in Temporal activity contexts and in test environments. Activity types
// embed it by value; the zero value emits no events.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates a BaseActivities. A nil sink disables events.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext returns execution details from an activity context.
// Outside an activity (activity.GetInfo panics there) it returns placeholder
// IDs so activities can be called directly in tests.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if r := recover(); r != nil {
				wfCtx = WorkflowContext{
					WorkflowID: "local",
					RunID:      "local-" + uuid.NewString()[:8],
					ActivityID: "local",
					Attempt:    1,
				}
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
		wfCtx.Attempt = info.Attempt
	}()

	return wfCtx
}

// EmitEventSafe appends envelope to the sink, retrying once after a short
// delay. Events are best effort: failures are logged and never returned, so
// an unavailable sink cannot fail the activity that emits. The sink is
// expected to drop duplicates by idempotency key, which makes activity
// retries safe. description only labels the log lines.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			timer := time.NewTimer(retryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				SafeLogError(ctx, fmt.Sprintf("Event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, fmt.Sprintf("Event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, fmt.Sprintf("Failed to emit %s after %d attempts", description, maxAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat records a heartbeat with progress details if ctx is an
// activity context. Long-running activities call it after each unit of work
// so the server can detect a stalled worker within the heartbeat timeout.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info level through the activity logger. It is a no-op
// outside an activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records an activity heartbeat. It is a no-op outside an
// activity context.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
