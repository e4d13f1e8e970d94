package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow orchestrator.
type Metrics struct {
	// Workflow initiation outcomes by terminal-or-running status
	InitiationOutcome *prometheus.CounterVec

	// End-to-end initiation latency including collaborator calls
	InitiateLatency prometheus.Histogram

	// Sample validation results by disposition
	SampleDisposition *prometheus.CounterVec

	// Cassette queue takes by result ("processed", "empty")
	CassetteTakes *prometheus.CounterVec
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		InitiationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "labflow_workflow_initiations_total",
			Help: "Total workflow initiations by resulting status",
		}, []string{"status"}),

		InitiateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "labflow_workflow_initiate_duration_seconds",
			Help:    "Duration of workflow initiation including order resolution",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		SampleDisposition: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "labflow_workflow_samples_total",
			Help: "Total samples handled at initiation by disposition",
		}, []string{"disposition"}), // disposition: "validated", "skipped"

		CassetteTakes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "labflow_cassette_takes_total",
			Help: "Total cassette queue take attempts by result",
		}, []string{"result"}),
	}
}

// IncrementInitiation records a workflow initiation outcome.
func (m *Metrics) IncrementInitiation(status string) {
	if m != nil {
		m.InitiationOutcome.WithLabelValues(status).Inc()
	}
}

// ObserveInitiateLatency records the duration of a workflow initiation.
func (m *Metrics) ObserveInitiateLatency(d time.Duration) {
	if m != nil {
		m.InitiateLatency.Observe(d.Seconds())
	}
}

// IncrementSample records a sample disposition at initiation.
func (m *Metrics) IncrementSample(disposition string) {
	if m != nil {
		m.SampleDisposition.WithLabelValues(disposition).Inc()
	}
}

// IncrementCassetteTake records a queue take attempt result.
func (m *Metrics) IncrementCassetteTake(result string) {
	if m != nil {
		m.CassetteTakes.WithLabelValues(result).Inc()
	}
}
