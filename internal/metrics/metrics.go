// Package metrics holds the counters and histograms of batch runs.
//
// A Metrics value owns a private registry so tests and repeated runs in one
// process never collide. Every method is safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "otri"

// Upsert outcomes.
const (
	UpsertOK       = "ok"
	UpsertConflict = "conflict"
	UpsertFailed   = "failed"
)

// Metrics is the set of OTRI collectors.
type Metrics struct {
	registry *prometheus.Registry

	atomsIngested    *prometheus.CounterVec
	atomsRejected    *prometheus.CounterVec
	checkFailures    *prometheus.CounterVec
	dedupDeleted     prometheus.Counter
	safetyViolations prometheus.Counter
	upserts          *prometheus.CounterVec
	malformed        prometheus.Counter
	runDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		atomsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "atoms_ingested_total",
			Help:      "Atoms admitted and inserted, by kind.",
		}, []string{"kind"}),
		atomsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "atoms_rejected_total",
			Help:      "Candidate atoms rejected by validation, by kind.",
		}, []string{"kind"}),
		checkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Failed validation verdicts, by check.",
		}, []string{"check"}),
		dedupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_deleted_total",
			Help:      "Duplicate raw atoms deleted by committed dedup runs.",
		}),
		safetyViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_safety_violations_total",
			Help:      "Dedup runs rolled back because the distinct count changed.",
		}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_upserts_total",
			Help:      "Canonical metadata upsert attempts, by outcome.",
		}, []string{"outcome"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_malformed_atoms_total",
			Help:      "Metadata atoms excluded from aggregation for lacking a usable ticker.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of batch operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.atomsIngested,
		m.atomsRejected,
		m.checkFailures,
		m.dedupDeleted,
		m.safetyViolations,
		m.upserts,
		m.malformed,
		m.runDuration,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AtomIngested counts one atom admitted for kind.
func (m *Metrics) AtomIngested(kind string) {
	if m == nil {
		return
	}
	m.atomsIngested.WithLabelValues(kind).Inc()
}

// AtomRejected counts one candidate atom of kind rejected by validation.
func (m *Metrics) AtomRejected(kind string) {
	if m == nil {
		return
	}
	m.atomsRejected.WithLabelValues(kind).Inc()
}

// CheckFailed counts one failure of the named check.
func (m *Metrics) CheckFailed(check string) {
	if m == nil {
		return
	}
	m.checkFailures.WithLabelValues(check).Inc()
}

// DedupDeleted adds n rows deleted by a committed dedup run.
func (m *Metrics) DedupDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.dedupDeleted.Add(float64(n))
}

// SafetyViolation counts one dedup run rolled back by the safety check.
func (m *Metrics) SafetyViolation() {
	if m == nil {
		return
	}
	m.safetyViolations.Inc()
}

// Upsert counts one upsert attempt with the given outcome.
func (m *Metrics) Upsert(outcome string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(outcome).Inc()
}

// MalformedAtom counts one metadata atom skipped during aggregation.
func (m *Metrics) MalformedAtom() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// ObserveRun records how long operation took since start.
func (m *Metrics) ObserveRun(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// WriteFile writes all metrics in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
