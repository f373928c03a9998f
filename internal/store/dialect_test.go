package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg, err := dialectFor(DriverPostgres)
	require.NoError(t, err)
	lite, err := dialectFor(DriverSQLite)
	require.NoError(t, err)

	query := "SELECT id FROM metadata WHERE id = ? AND value = ?"
	assert.Equal(t, "SELECT id FROM metadata WHERE id = $1 AND value = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestSQLiteConflict(t *testing.T) {
	unique := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	notNull := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}

	assert.True(t, sqliteConflict(unique))
	assert.True(t, sqliteConflict(fmt.Errorf("wrapped: %w", busy)))
	assert.False(t, sqliteConflict(notNull))
	assert.False(t, sqliteConflict(errors.New("plain")))
}

func TestPostgresConflict(t *testing.T) {
	assert.True(t, postgresConflict(&pq.Error{Code: "23505"}))
	assert.True(t, postgresConflict(fmt.Errorf("wrapped: %w", &pq.Error{Code: "40001"})))
	assert.False(t, postgresConflict(&pq.Error{Code: "23502"}))
	assert.False(t, postgresConflict(errors.New("plain")))
}
