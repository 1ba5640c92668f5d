package metrics

import "github.com/prometheus/client_golang/prometheus"

// APIMetrics holds Prometheus metrics for calls to the remote tracking API.
type APIMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	Unauthorized    prometheus.Counter
}

// NewAPIMetrics creates and registers remote API client metrics on the given registry.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of remote API requests in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "endpoint"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "requests_total",
			Help:      "Total number of remote API requests, by outcome kind.",
		}, []string{"method", "endpoint", "kind"}),
		Unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "unauthorized_events_total",
			Help:      "Total number of 401 responses broadcast to subscribers.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.Unauthorized)
	return m
}
