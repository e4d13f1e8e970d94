package cassette

import (
	"time"

	id "labflow/pkg/domain"
)

// SampleSpec is a sample as submitted on a cassette: the physical barcode and
// an optional pre-existing upstream order id.
type SampleSpec struct {
	Barcode string
	OrderID *id.OrderID
}

// Cassette is a physical batch carrier queued for sequential processing on
// one instrument.
//
// Invariants: QueuePosition strictly increases per instrument at enqueue
// time; a processed cassette is never returned by TakeNext again.
type Cassette struct {
	ID            id.CassetteID
	InstrumentID  id.InstrumentID
	QueuePosition int64
	Processed     bool
	Samples       []SampleSpec
	CreatedAt     time.Time
}
