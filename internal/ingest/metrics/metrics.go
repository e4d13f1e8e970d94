package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for result ingestion.
type Metrics struct {
	// Ingestion outcomes by classification
	Outcomes *prometheus.CounterVec

	// Dedupe cache hits
	DedupeHits prometheus.Counter
}

// New creates a Metrics instance with all ingestion metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "labflow_ingest_outcomes_total",
			Help: "Total result ingestion outcomes by classification",
		}, []string{"outcome"}), // outcome: "SUCCESS", "DUPLICATE", "FAILED"

		DedupeHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "labflow_ingest_dedupe_hits_total",
			Help: "Duplicate message ids caught by the Redis fast path",
		}),
	}
}

// IncrementOutcome records one classified ingestion outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

// IncrementDedupeHit records a cache-level duplicate.
func (m *Metrics) IncrementDedupeHit() {
	if m != nil {
		m.DedupeHits.Inc()
	}
}
