package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/otri/internal/atom"
)

// Run outcomes recorded in the runs table.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeDryRun     = "dry_run"
	OutcomeCompleted  = "completed"
	OutcomePartial    = "partial"
	OutcomeFailed     = "failed"
)

// runTimeLayout is fixed-width so text ordering of started_at is chronological.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is an audit record of one dedup or aggregation run.
type Run struct {
	ID         string      `json:"id"`
	Operation  string      `json:"operation"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    string      `json:"outcome"`
	Detail     atom.Object `json:"detail"`
}

// NewRun starts a run record for operation with a time-sortable UUIDv7 id.
func NewRun(operation string) Run {
	return Run{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Operation: operation,
		StartedAt: time.Now().UTC(),
		Detail:    atom.Object{},
	}
}

// RecordRun persists a finished run.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	detail, _, err := encodeValue(run.Detail)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO runs (id, operation, started_at, finished_at, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID,
		run.Operation,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.FinishedAt.UTC().Format(runTimeLayout),
		run.Outcome,
		detail,
	)
	if err != nil {
		return storageErr("record run", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, operation, started_at, finished_at, outcome, detail
		FROM runs
		ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, storageErr("list runs", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			detail            string
		)
		if err := rows.Scan(&r.ID, &r.Operation, &started, &finished, &r.Outcome, &detail); err != nil {
			return nil, storageErr("scan run", err)
		}
		if r.StartedAt, err = time.Parse(runTimeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(runTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s: finished_at: %w", r.ID, err)
		}
		if r.Detail, err = decodeValue(detail); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate runs", err)
	}
	return runs, nil
}
