package workflow

import (
	"context"

	id "labflow/pkg/domain"
)

// Store persists workflows and their samples. Sample and workflow rows are
// only mutated by the orchestrator call that owns the workflow instance, so
// plain updates are safe once the instrument claim is held.
type Store interface {
	SaveWorkflow(ctx context.Context, wf Workflow) error
	UpdateWorkflow(ctx context.Context, wf Workflow) error
	FindWorkflowByID(ctx context.Context, workflowID id.WorkflowID) (Workflow, error)

	SaveSample(ctx context.Context, sample Sample) error
	UpdateSample(ctx context.Context, sample Sample) error

	// ListSamples returns a workflow's samples in submission order.
	ListSamples(ctx context.Context, workflowID id.WorkflowID) ([]Sample, error)

	// FindActiveSampleByBarcode returns the most recently created non-terminal
	// sample carrying the barcode, sentinel.ErrNotFound if none is in flight.
	FindActiveSampleByBarcode(ctx context.Context, barcode string) (Sample, error)

	// RebindSampleOrder repoints samples from a placeholder order id to the
	// authoritative upstream one and clears their auto-created flag.
	RebindSampleOrder(ctx context.Context, placeholderID, realID id.OrderID) error
}
