package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts store activity.  A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	Fetches       *prometheus.CounterVec
	FetchDuration prometheus.Histogram
}

// NewMetrics makes metrics in their own registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_hits_total",
			Help:      "Documents served from the cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_misses_total",
			Help:      "Remote fetches not served from the cache",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetches_total",
			Help:      "Fetch calls by result",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch call duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.CacheHits, m.CacheMisses, m.Fetches, m.FetchDuration)
	return m
}

// Registry gives the registry for serving (with promhttp, say).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) fetched(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if fe, is := err.(*FetchError); is {
		result = string(fe.Reason)
	} else if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}
