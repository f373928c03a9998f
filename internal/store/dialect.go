package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// dialect holds the SQL that differs between SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per dialect.
type dialect struct {
	name   string
	driver string
	schema string

	// tickerExpr extracts the ticker from metadata.value. It must match the
	// expression of idx_metadata_ticker so lookups use the unique index.
	tickerExpr string

	// returning selects INSERT ... RETURNING id over LastInsertId.
	returning bool

	// rawTxOptions and lockRaw make a transaction exclusive over raw_atoms.
	rawTxOptions *sql.TxOptions
	lockRaw      string

	// isConflict reports errors a retry may resolve: unique violations and
	// serialization failures from a racing writer.
	isConflict func(error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{
			name:       DriverSQLite,
			driver:     "sqlite3",
			schema:     schemaSQLite,
			tickerExpr: "json_extract(value, '$.ticker')",
			isConflict: sqliteConflict,
		}, nil
	case DriverPostgres:
		return dialect{
			name:         DriverPostgres,
			driver:       "postgres",
			schema:       schemaPostgres,
			tickerExpr:   "((value::jsonb) ->> 'ticker')",
			returning:    true,
			rawTxOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
			lockRaw:      "LOCK TABLE raw_atoms IN SHARE ROW EXCLUSIVE MODE",
			isConflict:   postgresConflict,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q: must be %q or %q", driver, DriverSQLite, DriverPostgres)
	}
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
// Queries in this package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertID runs an INSERT and returns the generated id.
func (d dialect) insertID(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	if d.returning {
		var id int64
		err := q.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sqliteConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.Code == sqlite3.ErrBusy ||
		se.Code == sqlite3.ErrLocked
}

// PostgreSQL SQLSTATE codes treated as conflicts.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func postgresConflict(err error) bool {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return false
	}
	switch string(pe.Code) {
	case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}
