// Package metrics provides Prometheus metrics for cubist components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all cubist metrics.
	Namespace = "cubist"

	SubsystemMaterialize = "materialize"
	SubsystemStore       = "store"
	SubsystemLookup      = "lookup"
)

// Label names.
const (
	LabelStatus  = "status"
	LabelReason  = "reason"
	LabelBackend = "backend"
)

// Label values.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusNotFound = "not_found"
	StatusInvalid  = "invalid"
	StatusError    = "error"

	ReasonNullDimension = "null_dimension"
	ReasonNullMeasure   = "null_measure"
)

var (
	// MaterializeRunsTotal counts finished materialization runs.
	MaterializeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemMaterialize,
			Name:      "runs_total",
			Help:      "Total number of materialization runs",
		},
		[]string{LabelStatus},
	)

	// MaterializeSubsetsTotal counts per-subset outcomes.
	MaterializeSubsetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemMaterialize,
			Name:      "subsets_total",
			Help:      "Total number of subsets materialized",
		},
		[]string{LabelStatus},
	)

	// MaterializeDuration tracks wall time of whole runs.
	MaterializeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemMaterialize,
			Name:      "duration_seconds",
			Help:      "Duration of materialization runs in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	// MaterializeRowsDropped counts records excluded from a subset because of nulls.
	MaterializeRowsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemMaterialize,
			Name:      "rows_dropped_total",
			Help:      "Total number of records excluded from subset aggregation",
		},
		[]string{LabelReason},
	)

	// StoreWritesTotal counts artifact writes by backend.
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemStore,
			Name:      "writes_total",
			Help:      "Total number of artifact writes",
		},
		[]string{LabelBackend, LabelStatus},
	)

	// LookupRequestsTotal counts lookups by outcome.
	LookupRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLookup,
			Name:      "requests_total",
			Help:      "Total number of lookup requests",
		},
		[]string{LabelStatus},
	)

	// LookupCacheHits counts artifact cache hits.
	LookupCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLookup,
			Name:      "cache_hits_total",
			Help:      "Total number of artifact cache hits",
		},
	)

	// LookupCacheMisses counts artifact cache misses.
	LookupCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLookup,
			Name:      "cache_misses_total",
			Help:      "Total number of artifact cache misses",
		},
	)
)

var allMetrics = []prometheus.Collector{
	MaterializeRunsTotal,
	MaterializeSubsetsTotal,
	MaterializeDuration,
	MaterializeRowsDropped,
	StoreWritesTotal,
	LookupRequestsTotal,
	LookupCacheHits,
	LookupCacheMisses,
}

// Register registers all cubist metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all cubist metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a registry with all cubist metrics and the standard
// Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	RegisterWith(reg)
	return reg
}
