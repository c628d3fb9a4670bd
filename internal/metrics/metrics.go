// Package metrics exposes Prometheus instrumentation for backend lookups
// and migration scans. Counters are registered on a private registry so
// library users embedding the resolver do not pollute the default one.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	scanRunsTotal  prometheus.Counter
	scanFindings   *prometheus.CounterVec
)

func initMetrics() {
	registry = prometheus.NewRegistry()
	factory := promauto.With(registry)

	lookupsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "backend_lookups_total",
		Help:      "Backend lookups by backend name and outcome.",
	}, []string{"backend", "outcome"})

	lookupDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skein",
		Name:      "backend_lookup_duration_seconds",
		Help:      "Backend lookup latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	scanRunsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "scan_runs_total",
		Help:      "Migration scan invocations.",
	})

	scanFindings = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "scan_findings_total",
		Help:      "Removed-API findings by rule.",
	}, []string{"rule"})
}

// Registry returns the registry all skein metrics are registered on.
func Registry() *prometheus.Registry {
	once.Do(initMetrics)
	return registry
}

// ObserveLookup records one backend lookup.
func ObserveLookup(backend, outcome string, seconds float64) {
	once.Do(initMetrics)
	lookupsTotal.WithLabelValues(backend, outcome).Inc()
	lookupDuration.WithLabelValues(backend).Observe(seconds)
}

// ObserveScan records one migration scan run and its findings per rule.
func ObserveScan(findingsByRule map[string]int) {
	once.Do(initMetrics)
	scanRunsTotal.Inc()
	for rule, n := range findingsByRule {
		scanFindings.WithLabelValues(rule).Add(float64(n))
	}
}
