package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-record reads when no row matches.
var ErrNotFound = errors.New("not found")

// ErrRollback may be returned from a WithRawLock callback to discard the
// transaction without reporting an error.
var ErrRollback = errors.New("rollback requested")

// StorageError wraps a failure of the underlying database: connectivity,
// transaction or constraint errors. It is never recovered locally; retry
// policy belongs to the caller.
type StorageError struct {
	// Op names the store operation that failed.
	Op string

	// Err is the driver error.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConflictError reports a canonical upsert that lost a race with a
// concurrent writer for the same ticker. The caller must retry the upsert.
type ConflictError struct {
	Ticker string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting upsert for ticker %q: %v", e.Ticker, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsConflict returns true if err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsStorageError returns true if err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// classify turns a driver error from a canonical upsert into a ConflictError
// when a retry may succeed, otherwise into a StorageError.
func (s *Store) classify(op, ticker string, err error) error {
	if s.dialect.isConflict != nil && s.dialect.isConflict(err) {
		return &ConflictError{Ticker: ticker, Err: err}
	}
	return storageErr(op, err)
}
