package order

import (
	"time"

	id "labflow/pkg/domain"
)

// Status tracks the lifecycle of a test order from the core's point of view.
type Status string

const (
	StatusAwaitingResult Status = "AWAITING_RESULT"
	StatusResultReceived Status = "RESULT_RECEIVED"
)

// Record is the local projection of a test order. The order service owns the
// order; the core keeps just enough to correlate results, detect stuck orders
// and reconcile placeholders created while the order service was down.
type Record struct {
	ID          id.OrderID
	Barcode     string
	PatientRef  string
	PanelCode   string
	Status      Status
	AutoCreated bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TestOrder is the upstream order service's representation, as returned by
// its lookup API.
type TestOrder struct {
	ID         id.OrderID `json:"id"`
	Barcode    string     `json:"barcode"`
	PatientRef string     `json:"patientRef"`
	PanelCode  string     `json:"panelCode"`
}
