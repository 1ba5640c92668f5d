package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkspaceMetrics holds Prometheus metrics for per-browser workspaces.
type WorkspaceMetrics struct {
	Active    prometheus.Gauge
	Created   prometheus.Counter
	Evictions prometheus.Counter
}

// NewWorkspaceMetrics creates and registers workspace metrics on the given registry.
func NewWorkspaceMetrics(reg prometheus.Registerer) *WorkspaceMetrics {
	m := &WorkspaceMetrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "active",
			Help:      "Number of workspaces held in memory.",
		}),
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "created_total",
			Help:      "Total number of workspaces created.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "evictions_total",
			Help:      "Total number of idle workspaces evicted.",
		}),
	}

	reg.MustRegister(m.Active, m.Created, m.Evictions)
	return m
}
