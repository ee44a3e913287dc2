// Package metrics collects run statistics for optional export in the
// prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entity_meta"

// Metrics holds the collectors for one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Chunks             prometheus.Counter
	RecognizerDuration prometheus.Histogram
	EntitiesObserved   *prometheus.CounterVec
	EntitiesAccepted   *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Number of chunks sent to the recognizer",
		}),
		RecognizerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognizer_duration_seconds",
			Help:      "Time spent in recognizer calls",
			Buckets:   prometheus.DefBuckets,
		}),
		EntitiesObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_observed_total",
			Help:      "Entities returned by the recognizer",
		}, []string{"category"}),
		EntitiesAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_accepted_total",
			Help:      "Distinct entity texts accepted by the quality filter",
		}, []string{"category"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Recognizer responses served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Recognizer responses not found in the cache",
		}),
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format,
// replacing the file atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
