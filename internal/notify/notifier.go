// Package notify delivers fire-and-forget workflow status signals. Delivery
// failures are logged and never retried; workflow state never depends on a
// notification landing.
package notify

import (
	"context"
	"time"

	id "labflow/pkg/domain"
)

// WorkflowEvent describes a workflow status change.
type WorkflowEvent struct {
	Kind         string          `json:"kind"`
	WorkflowID   id.WorkflowID   `json:"workflowId"`
	InstrumentID id.InstrumentID `json:"instrumentId"`
	Message      string          `json:"message,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

const (
	KindWorkflowStarted   = "workflow.started"
	KindWorkflowCompleted = "workflow.completed"
	KindReagentShortage   = "reagent.shortage"
)

// Notifier is the outbound signal port.
type Notifier interface {
	WorkflowStarted(ctx context.Context, e WorkflowEvent)
	WorkflowCompleted(ctx context.Context, e WorkflowEvent)
	ReagentShortage(ctx context.Context, e WorkflowEvent)
}
