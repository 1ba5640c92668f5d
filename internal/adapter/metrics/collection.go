package metrics

import "github.com/prometheus/client_golang/prometheus"

// CollectionMetrics holds Prometheus metrics for paginated collections.
type CollectionMetrics struct {
	Fetches        *prometheus.CounterVec
	StaleResponses *prometheus.CounterVec
	LocalMutations *prometheus.CounterVec
}

// NewCollectionMetrics creates and registers collection metrics on the given registry.
func NewCollectionMetrics(reg prometheus.Registerer) *CollectionMetrics {
	m := &CollectionMetrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "fetches_total",
			Help:      "Total number of page fetches, by kind (first, more) and result.",
		}, []string{"kind", "result"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "stale_responses_total",
			Help:      "Total number of page responses dropped as stale, by reason.",
		}, []string{"reason"}),
		LocalMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "local_mutations_total",
			Help:      "Total number of local list splices, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(m.Fetches, m.StaleResponses, m.LocalMutations)
	return m
}
