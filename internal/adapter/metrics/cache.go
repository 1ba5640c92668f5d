package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for the shared category cache.
type CacheMetrics struct {
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	LoadErrors prometheus.Counter
}

// NewCacheMetrics creates and registers category cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "category_cache",
			Name:      "hits_total",
			Help:      "Total number of category lookups served from cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "category_cache",
			Name:      "misses_total",
			Help:      "Total number of category lookups that went to the remote API.",
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "category_cache",
			Name:      "load_errors_total",
			Help:      "Total number of failed category loads.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.LoadErrors)
	return m
}
