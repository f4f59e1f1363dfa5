// Package metrics collects resolver metrics in a private Prometheus registry
// and exports them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "catresolve"

// Collector holds the resolver metrics. A nil *Collector is valid and
// records nothing, so callers never need to check for it.
type Collector struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	documentsLoaded    *prometheus.CounterVec
	cacheHits          prometheus.Counter
	importsSkipped     prometheus.Counter
	importDepth        prometheus.Histogram
}

// NewCollector creates a Collector with its own registry
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of root document resolutions by outcome",
		},
		[]string{"outcome"},
	)
	c.resolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolution_duration_seconds",
		Help:      "Time spent resolving a root document and its imports",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	c.documentsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_loaded_total",
			Help:      "Documents loaded by source kind",
		},
		[]string{"source"},
	)
	c.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_cache_hits_total",
		Help:      "Imports served from the per-request document cache",
	})
	c.importsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imports_skipped_total",
		Help:      "Optional imports skipped because their target was missing",
	})
	c.importDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "import_depth",
		Help:      "Maximum import nesting depth per resolution",
		Buckets:   prometheus.LinearBuckets(1, 2, 8),
	})

	c.registry.MustRegister(
		c.resolutionsTotal,
		c.resolutionDuration,
		c.documentsLoaded,
		c.cacheHits,
		c.importsSkipped,
		c.importDepth,
	)
	return c
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveResolution records one finished resolution. outcome is "ok" or the
// error category.
func (c *Collector) ObserveResolution(outcome string, d time.Duration, maxDepth int) {
	if c == nil {
		return
	}
	c.resolutionsTotal.WithLabelValues(outcome).Inc()
	c.resolutionDuration.Observe(d.Seconds())
	if maxDepth > 0 {
		c.importDepth.Observe(float64(maxDepth))
	}
}

// DocumentLoaded records a document read through a loader
func (c *Collector) DocumentLoaded(remote bool) {
	if c == nil {
		return
	}
	source := "local"
	if remote {
		source = "remote"
	}
	c.documentsLoaded.WithLabelValues(source).Inc()
}

// CacheHit records an import served from the document cache
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// ImportSkipped records an optional import whose target was missing
func (c *Collector) ImportSkipped() {
	if c == nil {
		return
	}
	c.importsSkipped.Inc()
}

// WriteTextfile writes all metrics to filename atomically, in the format read
// by the node_exporter textfile collector.
func (c *Collector) WriteTextfile(filename string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(filename, c.registry)
}
