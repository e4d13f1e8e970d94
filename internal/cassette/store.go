package cassette

import (
	"context"

	id "labflow/pkg/domain"
)

// Store is the per-instrument cassette backlog.
type Store interface {
	// Enqueue appends a cassette at the tail of the instrument's queue,
	// assigning the next queue position from a per-instrument monotonic
	// counter.
	Enqueue(ctx context.Context, instrumentID id.InstrumentID, samples []SampleSpec) (Cassette, error)

	// TakeNext atomically claims the oldest unprocessed cassette for the
	// instrument and marks it processed. Two concurrent calls never receive
	// the same cassette. Returns sentinel.ErrNotFound when the queue is
	// empty (callers translate that into the "empty" no-op signal).
	TakeNext(ctx context.Context, instrumentID id.InstrumentID) (Cassette, error)

	FindByID(ctx context.Context, cassetteID id.CassetteID) (Cassette, error)
}
