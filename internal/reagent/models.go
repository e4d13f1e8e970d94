package reagent

import (
	"time"

	"github.com/google/uuid"

	id "labflow/pkg/domain"
)

// Reagent is one lot installed on an instrument. Inventory CRUD and vendor
// management live in the inventory service; this module only reads what it
// needs for the sufficiency gate.
type Reagent struct {
	ID           uuid.UUID
	InstrumentID id.InstrumentID
	Name         string
	LotNumber    string
	Quantity     float64
	MinThreshold float64
	ExpiresAt    time.Time
	InUse        bool
	InstalledAt  time.Time
}

// Usable reports whether this lot passes the gate at the given time: quantity
// above the operating threshold and expiry strictly in the future. Expired
// stock fails even with nonzero quantity.
func (r Reagent) Usable(now time.Time) bool {
	return r.Quantity > r.MinThreshold && r.ExpiresAt.After(now)
}
