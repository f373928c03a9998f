package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/otri/internal/atom"
)

// FetchAllMetadataAtoms returns every metadata atom in the raw table.
// Rows come back in id order for reproducible output, but grouping and
// ordering semantics belong to the caller.
//
// Returns an empty slice (not nil) if no metadata atoms exist.
func (s *Store) FetchAllMetadataAtoms(ctx context.Context) ([]atom.Atom, error) {
	return s.ReadRawAtoms(ctx, atom.KindMetadata)
}

// ReadRawAtoms returns the atoms of the given kind ordered by id.
// An empty kind returns every atom.
func (s *Store) ReadRawAtoms(ctx context.Context, kind atom.Kind) ([]atom.Atom, error) {
	query := `SELECT id, kind, value FROM raw_atoms`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id ASC`

	atoms, err := queryAtoms(ctx, s.db, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, storageErr("read raw atoms", err)
	}
	return atoms, nil
}

// ReadCanonicalMetadata returns the canonical record for ticker.
// Returns ErrNotFound if the ticker has no record.
func (s *Store) ReadCanonicalMetadata(ctx context.Context, ticker string) (atom.Atom, error) {
	ticker = norm.NFC.String(ticker)
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, value FROM metadata
		WHERE `+s.dialect.tickerExpr+` = ?`), ticker)

	var (
		a    atom.Atom
		text string
	)
	if err := row.Scan(&a.ID, &text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return atom.Atom{}, fmt.Errorf("canonical metadata for %q: %w", ticker, ErrNotFound)
		}
		return atom.Atom{}, storageErr("read canonical metadata", err)
	}

	value, err := decodeValue(text)
	if err != nil {
		return atom.Atom{}, fmt.Errorf("read canonical metadata: %w", err)
	}
	a.Kind = atom.KindMetadata
	a.Value = value
	return a, nil
}

// ReadAllCanonicalMetadata returns every canonical record ordered by ticker.
func (s *Store) ReadAllCanonicalMetadata(ctx context.Context) ([]atom.Atom, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value FROM metadata
		ORDER BY `+s.dialect.tickerExpr+` ASC, id ASC`)
	if err != nil {
		return nil, storageErr("read canonical metadata", err)
	}
	defer rows.Close()

	records := []atom.Atom{}
	for rows.Next() {
		var (
			a    atom.Atom
			text string
		)
		if err := rows.Scan(&a.ID, &text); err != nil {
			return nil, storageErr("scan canonical metadata", err)
		}
		value, err := decodeValue(text)
		if err != nil {
			return nil, fmt.Errorf("canonical metadata id %d: %w", a.ID, err)
		}
		a.Kind = atom.KindMetadata
		a.Value = value
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate canonical metadata", err)
	}
	return records, nil
}

// ListTickers returns the universe of tracked instruments: the ticker of
// every canonical record, sorted.
func (s *Store) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+s.dialect.tickerExpr+` FROM metadata
		WHERE `+s.dialect.tickerExpr+` IS NOT NULL
		ORDER BY 1 ASC`)
	if err != nil {
		return nil, storageErr("list tickers", err)
	}
	defer rows.Close()

	tickers := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, storageErr("scan ticker", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tickers", err)
	}
	return tickers, nil
}

// queryAtoms runs a query selecting (id, kind, value) and decodes the rows.
func queryAtoms(ctx context.Context, q queryer, query string, args ...any) ([]atom.Atom, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	atoms := []atom.Atom{}
	for rows.Next() {
		var (
			a    atom.Atom
			kind string
			text string
		)
		if err := rows.Scan(&a.ID, &kind, &text); err != nil {
			return nil, err
		}
		value, err := decodeValue(text)
		if err != nil {
			return nil, fmt.Errorf("atom id %d: %w", a.ID, err)
		}
		a.Kind = atom.Kind(kind)
		a.Value = value
		atoms = append(atoms, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return atoms, nil
}
