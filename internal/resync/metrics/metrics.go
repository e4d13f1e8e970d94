package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation scheduler.
type Metrics struct {
	// Resync request batches published
	Batches prometheus.Counter

	// Barcodes included in resync requests
	Barcodes prometheus.Counter

	// Placeholder orders rebound to authoritative ids
	Rebinds prometheus.Counter
}

// New creates a Metrics instance with all scheduler metrics registered.
func New() *Metrics {
	return &Metrics{
		Batches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "labflow_resync_batches_total",
			Help: "Total resync request events published",
		}),
		Barcodes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "labflow_resync_barcodes_total",
			Help: "Total barcodes included in resync requests",
		}),
		Rebinds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "labflow_resync_rebinds_total",
			Help: "Total placeholder orders rebound to upstream order ids",
		}),
	}
}

// IncrementBatch records one published resync batch of n barcodes.
func (m *Metrics) IncrementBatch(n int) {
	if m != nil {
		m.Batches.Inc()
		m.Barcodes.Add(float64(n))
	}
}

// IncrementRebind records one successful placeholder rebind.
func (m *Metrics) IncrementRebind() {
	if m != nil {
		m.Rebinds.Inc()
	}
}
