package instrument

import (
	"context"

	id "labflow/pkg/domain"
)

// Store persists instruments. Claim and Release are the only write paths for
// Status; both are conditional updates so concurrent workflow initiations
// cannot both win the same instrument.
type Store interface {
	Save(ctx context.Context, inst Instrument) error
	FindByID(ctx context.Context, instrumentID id.InstrumentID) (Instrument, error)

	// SetMode records an operator mode change with its reason.
	SetMode(ctx context.Context, instrumentID id.InstrumentID, mode Mode, reason string) error

	// Claim atomically moves Status from AVAILABLE to RUNNING. Returns
	// sentinel.ErrNotFound for unknown instruments and sentinel.ErrInvalidState
	// when the instrument is not AVAILABLE (a concurrent claim won, or the
	// instrument is in ERROR).
	Claim(ctx context.Context, instrumentID id.InstrumentID) error

	// Release atomically moves Status from RUNNING to the given status
	// (AVAILABLE on completion, ERROR on hard failure). Returns
	// sentinel.ErrInvalidState when the instrument was not RUNNING.
	Release(ctx context.Context, instrumentID id.InstrumentID, to Status) error
}
