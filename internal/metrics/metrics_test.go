package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.AtomIngested("raw")
		m.AtomRejected("raw")
		m.CheckFailed("ticker")
		m.DedupDeleted(3)
		m.SafetyViolation()
		m.Upsert(UpsertOK)
		m.MalformedAtom()
		m.ObserveRun("dedup", time.Now())
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteFile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.AtomIngested("raw")
	m.AtomIngested("raw")
	m.AtomIngested("metadata")
	m.DedupDeleted(4)
	m.DedupDeleted(0)
	m.Upsert(UpsertConflict)
	m.Upsert(UpsertOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.atomsIngested.WithLabelValues("raw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.atomsIngested.WithLabelValues("metadata")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.dedupDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upserts.WithLabelValues(UpsertConflict)))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.SafetyViolation()
	m.ObserveRun("dedup", time.Now().Add(-time.Second))

	path := filepath.Join(t.TempDir(), "otri.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "otri_dedup_safety_violations_total 1"))
	assert.Contains(t, text, `otri_run_duration_seconds_count{operation="dedup"} 1`)
}
