package instrument

import (
	"time"

	id "labflow/pkg/domain"
)

// Mode is the operator-controlled lifecycle setting of an analyzer.
type Mode string

const (
	ModeReady       Mode = "READY"
	ModeMaintenance Mode = "MAINTENANCE"
	ModeInactive    Mode = "INACTIVE"
)

var validModes = map[Mode]bool{
	ModeReady:       true,
	ModeMaintenance: true,
	ModeInactive:    true,
}

// IsValid checks the mode against the supported enum values.
func (m Mode) IsValid() bool {
	return validModes[m]
}

// Status is the orchestrator-controlled run state of an analyzer.
// Invariant: StatusRunning implies exactly one non-terminal workflow owns the
// instrument; transitions in and out of StatusRunning go through the store's
// compare-and-set operations, never plain writes.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusRunning   Status = "RUNNING"
	StatusError     Status = "ERROR"
)

// Instrument is a physical lab analyzer registered with the service.
type Instrument struct {
	ID         id.InstrumentID
	Name       string
	Mode       Mode
	Status     Status
	ModeReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
