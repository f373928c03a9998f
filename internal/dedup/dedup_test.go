package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/metrics"
	"github.com/roach88/otri/internal/store"
)

var (
	valueA = atom.NewObject(atom.O("ticker", atom.String("AAPL")), atom.O("close", atom.Float(189.84)))
	valueB = atom.NewObject(atom.O("ticker", atom.String("MSFT")), atom.O("close", atom.Float(410.2)))
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertRaw(t *testing.T, s *store.Store, values ...atom.Object) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := s.InsertRaw(context.Background(), v)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

// snapshot returns (id, canonical value) for every raw atom.
func snapshot(t *testing.T, s *store.Store) map[int64]string {
	t.Helper()
	atoms, err := s.ReadRawAtoms(context.Background(), "")
	require.NoError(t, err)
	out := make(map[int64]string, len(atoms))
	for _, a := range atoms {
		b, err := atom.MarshalCanonical(a.Value)
		require.NoError(t, err)
		out[a.ID] = string(a.Kind) + ":" + string(b)
	}
	return out
}

func distinctValues(snap map[int64]string) map[string]bool {
	out := make(map[string]bool)
	for _, v := range snap {
		out[v] = true
	}
	return out
}

func TestRun_KeepsLowestIDOfEachValue(t *testing.T) {
	s := createTestStore(t)
	ids := insertRaw(t, s, valueA, valueA, valueB)

	res, err := New(s).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Committed)
	assert.Nil(t, res.Violation)
	assert.Equal(t, int64(3), res.RowsBefore)
	assert.Equal(t, int64(2), res.DistinctBefore)
	assert.Equal(t, int64(2), res.DistinctAfter)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, store.OutcomeCommitted, res.Outcome())

	snap := snapshot(t, s)
	require.Len(t, snap, 2)
	assert.Contains(t, snap, ids[0])
	assert.Contains(t, snap, ids[2])
	assert.NotContains(t, snap, ids[1])
}

func TestRun_AbortsWhenDistinctCountDrops(t *testing.T) {
	s := createTestStore(t)
	ids := insertRaw(t, s, valueA, valueA, valueB)
	before := snapshot(t, s)

	// A broken deletion step that removes every copy of A.
	buggy := func(ctx context.Context, tx *store.RawTx) (int64, error) {
		return tx.Delete(ctx, ids[0], ids[1])
	}

	logger, hook := logtest.NewNullLogger()
	m := metrics.New()
	res, err := New(s, withDeleter(buggy), WithLogger(logger), WithMetrics(m)).Run(context.Background())
	require.NoError(t, err, "a safety violation is reported, not returned")

	assert.False(t, res.Committed)
	require.NotNil(t, res.Violation)
	assert.Equal(t, int64(2), res.Violation.DistinctBefore)
	assert.Equal(t, int64(1), res.Violation.DistinctAfter)
	assert.Equal(t, store.OutcomeRolledBack, res.Outcome())

	assert.Equal(t, before, snapshot(t, s), "table must be unchanged after rollback")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "safety violation")
	expected := `
# HELP otri_dedup_safety_violations_total Dedup runs rolled back because the distinct count changed.
# TYPE otri_dedup_safety_violations_total counter
otri_dedup_safety_violations_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"otri_dedup_safety_violations_total"))
}

func TestRun_HashCollisionCaughtBySafetyCheck(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Two distinct values forced to share a fingerprint.
	for _, v := range []string{`{"a":1}`, `{"a":2}`} {
		_, err := s.DB().ExecContext(ctx,
			`INSERT INTO raw_atoms (kind, value, value_hash) VALUES ('raw', ?, 'collision')`, v)
		require.NoError(t, err)
	}
	before := snapshot(t, s)

	res, err := New(s).Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, res.Violation)
	assert.False(t, res.Committed)
	assert.Equal(t, before, snapshot(t, s))
}

func TestRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	insertRaw(t, s, valueA, valueB, valueA, valueA, valueB)

	_, err := New(s).Run(context.Background())
	require.NoError(t, err)
	first := snapshot(t, s)

	res, err := New(s).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.True(t, res.Committed)
	assert.Equal(t, first, snapshot(t, s))
}

func TestRun_PreservesDistinctValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	nested := atom.NewObject(
		atom.O("ticker", atom.String("AAPL")),
		atom.O("bar", atom.NewObject(atom.O("o", atom.Int(1)), atom.O("c", atom.Int(2)))),
	)
	reordered := atom.NewObject(
		atom.O("bar", atom.NewObject(atom.O("c", atom.Int(2)), atom.O("o", atom.Int(1)))),
		atom.O("ticker", atom.String("AAPL")),
	)
	insertRaw(t, s, valueA, nested, valueB, reordered, valueA)
	_, err := s.InsertMetadata(ctx, valueA) // same value, different kind
	require.NoError(t, err)

	before := distinctValues(snapshot(t, s))

	res, err := New(s).Run(ctx)
	require.NoError(t, err)
	require.True(t, res.Committed)

	after := snapshot(t, s)
	assert.Equal(t, before, distinctValues(after))
	assert.Len(t, after, len(before), "at most one row per distinct value")
	assert.Equal(t, int64(2), res.Deleted)
}

func TestRun_DryRunRollsBack(t *testing.T) {
	s := createTestStore(t)
	insertRaw(t, s, valueA, valueA, valueB)
	before := snapshot(t, s)

	res, err := New(s, WithDryRun()).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.False(t, res.Committed)
	assert.Equal(t, int64(1), res.Deleted, "reports what would be deleted")
	assert.Equal(t, []int64{2}, res.DeletedIDs)
	assert.Equal(t, store.OutcomeDryRun, res.Outcome())
	assert.Equal(t, before, snapshot(t, s))
}

func TestRun_EmptyTable(t *testing.T) {
	s := createTestStore(t)

	res, err := New(s).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Zero(t, res.RowsBefore)
}

func TestRun_DeleterErrorPropagates(t *testing.T) {
	s := createTestStore(t)
	insertRaw(t, s, valueA, valueA)
	before := snapshot(t, s)

	boom := errors.New("boom")
	failing := func(ctx context.Context, tx *store.RawTx) (int64, error) {
		if _, err := tx.DeleteDuplicates(ctx); err != nil {
			return 0, err
		}
		return 0, boom
	}

	res, err := New(s, withDeleter(failing)).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, res.Committed)
	assert.Equal(t, store.OutcomeFailed, res.Outcome())
	assert.Equal(t, before, snapshot(t, s))
}

func TestRun_CancelledContextLeavesTableUnchanged(t *testing.T) {
	s := createTestStore(t)
	insertRaw(t, s, valueA, valueA)
	before := snapshot(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, before, snapshot(t, s))
}

func TestRun_RecordsAuditRun(t *testing.T) {
	s := createTestStore(t)
	insertRaw(t, s, valueA, valueA)

	res, err := New(s).Run(context.Background())
	require.NoError(t, err)

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, Operation, runs[0].Operation)
	assert.Equal(t, store.OutcomeCommitted, runs[0].Outcome)
	assert.Equal(t, atom.Int(1), runs[0].Detail["deleted"])
}

func TestSafetyViolation_Error(t *testing.T) {
	err := &SafetyViolation{DistinctBefore: 2, DistinctAfter: 1}
	assert.Equal(t, "dedup safety violation: distinct values 2 before, 1 after deletion", err.Error())
}
