package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds transport-level Prometheus metrics. Module-specific metrics
// live in each module's metrics package.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
}

// New creates and registers the platform metrics.
func New() *Metrics {
	return &Metrics{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method and path",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
	}
}

// ObserveRequestLatency records one request's duration.
func (m *Metrics) ObserveRequestLatency(method, path string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(method, path).Observe(d.Seconds())
	}
}
