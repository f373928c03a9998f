package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/otri/internal/atom"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertRaw inserts raw atoms and returns their ids.
func insertRaw(t *testing.T, s *Store, values ...atom.Object) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := s.InsertRaw(context.Background(), v)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func obj(pairs ...atom.Pair) atom.Object {
	return atom.NewObject(pairs...)
}
