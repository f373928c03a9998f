package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/otri/internal/atom"
)

// RawTx is an exclusive transaction over raw_atoms. It is only valid inside
// the WithRawLock callback that received it.
type RawTx struct {
	tx *sql.Tx
	d  dialect
}

// WithRawLock runs fn inside a transaction that excludes every other writer
// of raw_atoms for its duration. The transaction commits if fn returns nil
// and rolls back otherwise. Returning ErrRollback rolls back and makes
// WithRawLock return nil.
func (s *Store) WithRawLock(ctx context.Context, fn func(tx *RawTx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.rawTxOptions)
	if err != nil {
		return storageErr("raw lock: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	if s.dialect.lockRaw != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.lockRaw); err != nil {
			return storageErr("raw lock: lock table", err)
		}
	}

	if err := fn(&RawTx{tx: tx, d: s.dialect}); err != nil {
		if errors.Is(err, ErrRollback) {
			return nil
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("raw lock: commit", err)
	}
	return nil
}

// CountRows returns the number of rows in raw_atoms.
func (t *RawTx) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_atoms`).Scan(&n); err != nil {
		return 0, storageErr("count rows", err)
	}
	return n, nil
}

// CountDistinct returns the number of distinct (kind, value) pairs.
// It compares the full canonical text, not the fingerprint.
func (t *RawTx) CountDistinct(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (SELECT DISTINCT kind, value FROM raw_atoms) AS d`).Scan(&n)
	if err != nil {
		return 0, storageErr("count distinct", err)
	}
	return n, nil
}

// DeleteDuplicates deletes every row whose (kind, value_hash) is shared with
// a row of lower id, so the earliest inserted copy survives. It returns the
// number of rows deleted.
func (t *RawTx) DeleteDuplicates(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM raw_atoms
		WHERE id NOT IN (
			SELECT MIN(id) FROM raw_atoms GROUP BY kind, value_hash
		)`)
	if err != nil {
		return 0, storageErr("delete duplicates", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete duplicates: rows affected", err)
	}
	return n, nil
}

// Delete removes the given rows and returns how many were deleted.
func (t *RawTx) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := t.tx.ExecContext(ctx,
		t.d.rebind(`DELETE FROM raw_atoms WHERE id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return 0, storageErr("delete atoms", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete atoms: rows affected", err)
	}
	return n, nil
}

// Atoms returns every row of raw_atoms in id order, as seen by the transaction.
func (t *RawTx) Atoms(ctx context.Context) ([]atom.Atom, error) {
	atoms, err := queryAtoms(ctx, t.tx, `SELECT id, kind, value FROM raw_atoms ORDER BY id ASC`)
	if err != nil {
		return nil, storageErr("read raw atoms", err)
	}
	return atoms, nil
}
