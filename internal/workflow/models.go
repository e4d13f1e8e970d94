package workflow

import (
	"time"

	id "labflow/pkg/domain"
)

// Status is the workflow state machine.
//
// INITIATED -> VALIDATING -> {RUNNING | HALTED | FAILED}
// RUNNING -> {COMPLETED | FAILED}
//
// COMPLETED, FAILED and HALTED are terminal. A halted workflow is never
// reopened; after remediation the run is re-initiated as a new workflow.
type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusValidating Status = "VALIDATING"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusHalted     Status = "HALTED"
)

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusHalted
}

// SampleStatus is the per-sample lifecycle. It only advances forward, except
// that the terminal SKIPPED and FAILED branches are reachable from any
// pre-COMPLETED state.
type SampleStatus string

const (
	SamplePending    SampleStatus = "PENDING"
	SampleValidated  SampleStatus = "VALIDATED"
	SampleQueued     SampleStatus = "QUEUED"
	SampleProcessing SampleStatus = "PROCESSING"
	SampleCompleted  SampleStatus = "COMPLETED"
	SampleSkipped    SampleStatus = "SKIPPED"
	SampleFailed     SampleStatus = "FAILED"
)

// IsTerminal reports whether the sample has finished its lifecycle.
func (s SampleStatus) IsTerminal() bool {
	return s == SampleCompleted || s == SampleSkipped || s == SampleFailed
}

// sampleRank orders the forward path of the lifecycle. SKIPPED and FAILED sit
// outside the ranking: they are reachable from any non-terminal state.
var sampleRank = map[SampleStatus]int{
	SamplePending:    0,
	SampleValidated:  1,
	SampleQueued:     2,
	SampleProcessing: 3,
	SampleCompleted:  4,
}

// CanAdvanceTo reports whether moving to next respects the forward-only
// lifecycle. Terminal states never advance.
func (s SampleStatus) CanAdvanceTo(next SampleStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == SampleSkipped || next == SampleFailed {
		return true
	}
	from, ok := sampleRank[s]
	to, nextOK := sampleRank[next]
	return ok && nextOK && to > from
}

// Skip reasons recorded on SKIPPED samples.
const (
	SkipReasonInvalidBarcode     = "invalid barcode"
	SkipReasonOrderUnavailable   = "order service unavailable"
	SkipReasonOrderResolveFailed = "order resolution failed"
)

// Workflow is one run of an instrument over a batch of samples.
type Workflow struct {
	ID                    id.WorkflowID
	InstrumentID          id.InstrumentID
	CassetteID            *id.CassetteID
	Status                Status
	ReagentCheckPassed    bool
	OrderServiceAvailable bool
	ErrorMessage          string
	StartedAt             time.Time
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Sample is one specimen tracked through a workflow. Samples are never
// deleted; they are retained for audit and reconciliation.
type Sample struct {
	ID               id.SampleID
	WorkflowID       id.WorkflowID
	InstrumentID     id.InstrumentID
	Barcode          string
	OrderID          *id.OrderID
	Status           SampleStatus
	OrderAutoCreated bool
	SkipReason       string
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Submission is one sample handed to workflow initiation, optionally carrying
// a pre-registered upstream order id.
type Submission struct {
	Barcode string
	OrderID *id.OrderID
}

// Projection is the caller-facing view returned by initiation and reads.
type Projection struct {
	ID                    id.WorkflowID  `json:"id"`
	InstrumentID          id.InstrumentID `json:"instrumentId"`
	CassetteID            *id.CassetteID `json:"cassetteId,omitempty"`
	Status                Status         `json:"status"`
	SampleIDs             []id.SampleID  `json:"sampleIds"`
	ReagentCheckPassed    bool           `json:"reagentCheckPassed"`
	OrderServiceAvailable bool           `json:"orderServiceAvailable"`
	ErrorMessage          string         `json:"errorMessage,omitempty"`
	StartedAt             time.Time      `json:"startedAt"`
	CompletedAt           *time.Time     `json:"completedAt,omitempty"`
}
