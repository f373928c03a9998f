package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/otri/internal/atom"
)

// InsertRaw persists a new raw atom and returns its assigned id.
// Content is never inspected here; admission is the validator's job.
func (s *Store) InsertRaw(ctx context.Context, value atom.Object) (int64, error) {
	return s.insertAtom(ctx, atom.KindRaw, value)
}

// InsertMetadata persists a new metadata atom into the raw table, tagged
// with kind 'metadata', and returns its assigned id.
func (s *Store) InsertMetadata(ctx context.Context, value atom.Object) (int64, error) {
	return s.insertAtom(ctx, atom.KindMetadata, value)
}

func (s *Store) insertAtom(ctx context.Context, kind atom.Kind, value atom.Object) (int64, error) {
	op := "insert " + string(kind) + " atom"

	text, hash, err := encodeValue(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.dialect.insertID(ctx, s.db, `
		INSERT INTO raw_atoms (kind, value, value_hash)
		VALUES (?, ?, ?)`,
		string(kind), text, hash,
	)
	if err != nil {
		return 0, storageErr(op, err)
	}
	return id, nil
}

// UpsertCanonicalMetadata stores value as the canonical record for ticker,
// replacing the existing record if there is one. It returns the row id.
//
// The value's ticker field is set to ticker when absent; a value naming a
// different ticker is rejected. When a concurrent writer for the same ticker
// wins the race, the unique index rejects this write and a *ConflictError is
// returned; the caller should retry. Tickers are compared in Unicode NFC.
func (s *Store) UpsertCanonicalMetadata(ctx context.Context, ticker string, value atom.Object) (int64, error) {
	const op = "upsert canonical metadata"

	// Stored values are NFC, so the lookup key must be too.
	ticker = norm.NFC.String(ticker)
	if strings.TrimSpace(ticker) == "" {
		return 0, fmt.Errorf("%s: ticker is blank", op)
	}

	v := value.Clone()
	if v == nil {
		v = atom.Object{}
	}
	if v.Has(atom.TickerKey) {
		got, err := atom.Ticker(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		if got != ticker {
			return 0, fmt.Errorf("%s: value ticker %q does not match %q", op, got, ticker)
		}
	}
	v[atom.TickerKey] = atom.String(ticker)

	text, _, err := encodeValue(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.classify(op+": begin tx", ticker, err)
	}
	defer tx.Rollback() // No-op if committed

	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id FROM metadata
		WHERE `+s.dialect.tickerExpr+` = ?`), ticker).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`
			UPDATE metadata SET value = ? WHERE id = ?`), text, id)
		if err != nil {
			return 0, s.classify(op+": update", ticker, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		id, err = s.dialect.insertID(ctx, tx, `INSERT INTO metadata (value) VALUES (?)`, text)
		if err != nil {
			return 0, s.classify(op+": insert", ticker, err)
		}
	default:
		return 0, s.classify(op+": select", ticker, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, s.classify(op+": commit", ticker, err)
	}
	return id, nil
}
