// Package dedup removes exact-duplicate values from the raw atom table.
//
// A run counts distinct (kind, value) pairs, deletes every row whose value
// already exists under a lower id, and counts again, all inside one
// exclusive transaction. If the distinct count changed, non-duplicate data
// was about to be lost: the transaction is rolled back in full and the run
// reports a SafetyViolation instead of committing.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/logging"
	"github.com/roach88/otri/internal/metrics"
	"github.com/roach88/otri/internal/store"
)

// Operation names dedup runs in the audit log and metrics.
const Operation = "dedup"

// SafetyViolation reports a run whose deletion changed the number of
// distinct values. It always means a correctness defect, never a transient
// condition.
type SafetyViolation struct {
	DistinctBefore int64
	DistinctAfter  int64
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("dedup safety violation: distinct values %d before, %d after deletion",
		e.DistinctBefore, e.DistinctAfter)
}

// Result describes one run. Deleted is the number of rows the deletion
// step removed inside the transaction; those deletions only persist when
// Committed is true. DeletedIDs is only filled by dry runs.
type Result struct {
	RunID          string           `json:"run_id"`
	RowsBefore     int64            `json:"rows_before"`
	DistinctBefore int64            `json:"distinct_before"`
	DistinctAfter  int64            `json:"distinct_after"`
	Deleted        int64            `json:"deleted"`
	DeletedIDs     []int64          `json:"deleted_ids,omitempty"`
	Committed      bool             `json:"committed"`
	DryRun         bool             `json:"dry_run"`
	Violation      *SafetyViolation `json:"violation,omitempty"`
}

// Outcome returns the audit outcome of the run.
func (r Result) Outcome() string {
	switch {
	case r.Violation != nil:
		return store.OutcomeRolledBack
	case r.DryRun:
		return store.OutcomeDryRun
	case r.Committed:
		return store.OutcomeCommitted
	default:
		return store.OutcomeFailed
	}
}

// deleteFunc removes duplicates inside the raw lock and returns the number
// of rows deleted.
type deleteFunc func(ctx context.Context, tx *store.RawTx) (int64, error)

func deleteDuplicates(ctx context.Context, tx *store.RawTx) (int64, error) {
	return tx.DeleteDuplicates(ctx)
}

// Procedure runs dedup against one store.
type Procedure struct {
	store   *store.Store
	dryRun  bool
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	deleter deleteFunc
}

// Option configures a Procedure.
type Option func(*Procedure)

// WithDryRun makes the procedure report what it would delete and always
// roll back.
func WithDryRun() Option {
	return func(p *Procedure) { p.dryRun = true }
}

// WithLogger sets the logger for run summaries and safety warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Procedure) { p.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Procedure) { p.metrics = m }
}

// withDeleter replaces the deletion step.
func withDeleter(fn deleteFunc) Option {
	return func(p *Procedure) { p.deleter = fn }
}

// New creates a Procedure over s.
func New(s *store.Store, opts ...Option) *Procedure {
	p := &Procedure{
		store:   s,
		log:     logging.Discard(),
		deleter: deleteDuplicates,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one dedup pass. A safety violation is absorbed into the
// Result and logged as a warning; only storage failures are returned.
func (p *Procedure) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	defer p.metrics.ObserveRun(Operation, start)

	run := store.NewRun(Operation)
	log := p.log.WithField("run_id", run.ID)
	res := Result{RunID: run.ID, DryRun: p.dryRun}

	err := p.store.WithRawLock(ctx, func(tx *store.RawTx) error {
		var err error
		if res.RowsBefore, err = tx.CountRows(ctx); err != nil {
			return err
		}
		if res.DistinctBefore, err = tx.CountDistinct(ctx); err != nil {
			return err
		}
		var before []atom.Atom
		if p.dryRun {
			if before, err = tx.Atoms(ctx); err != nil {
				return err
			}
		}
		if res.Deleted, err = p.deleter(ctx, tx); err != nil {
			return fmt.Errorf("delete duplicates: %w", err)
		}
		if res.DistinctAfter, err = tx.CountDistinct(ctx); err != nil {
			return err
		}
		if p.dryRun {
			after, err := tx.Atoms(ctx)
			if err != nil {
				return err
			}
			res.DeletedIDs = removedIDs(before, after)
		}

		if res.DistinctAfter != res.DistinctBefore {
			res.Violation = &SafetyViolation{
				DistinctBefore: res.DistinctBefore,
				DistinctAfter:  res.DistinctAfter,
			}
			return store.ErrRollback
		}
		if p.dryRun {
			return store.ErrRollback
		}
		return nil
	})

	if err != nil {
		log.WithError(err).Error("dedup failed")
		p.record(ctx, log, run, res, store.OutcomeFailed)
		return res, fmt.Errorf("dedup: %w", err)
	}
	res.Committed = res.Violation == nil && !p.dryRun

	fields := logrus.Fields{
		"rows_before":     res.RowsBefore,
		"distinct_before": res.DistinctBefore,
		"distinct_after":  res.DistinctAfter,
		"deleted":         res.Deleted,
	}
	switch {
	case res.Violation != nil:
		p.metrics.SafetyViolation()
		log.WithFields(fields).Warn(res.Violation.Error() + "; rolled back, table unchanged")
	case res.DryRun:
		log.WithFields(fields).Info("dedup dry run, rolled back")
	default:
		p.metrics.DedupDeleted(res.Deleted)
		log.WithFields(fields).Info("dedup committed")
	}

	p.record(ctx, log, run, res, res.Outcome())
	return res, nil
}

// removedIDs returns the ids in before that are missing from after. Both
// are in id order.
func removedIDs(before, after []atom.Atom) []int64 {
	var ids []int64
	j := 0
	for _, a := range before {
		if j < len(after) && after[j].ID == a.ID {
			j++
			continue
		}
		ids = append(ids, a.ID)
	}
	return ids
}

// record writes the audit row. Failing to record never changes the outcome
// of a run that already committed or rolled back.
func (p *Procedure) record(ctx context.Context, log logrus.FieldLogger, run store.Run, res Result, outcome string) {
	run.Outcome = outcome
	run.Detail = atom.NewObject(
		atom.O("rows_before", atom.Int(res.RowsBefore)),
		atom.O("distinct_before", atom.Int(res.DistinctBefore)),
		atom.O("distinct_after", atom.Int(res.DistinctAfter)),
		atom.O("deleted", atom.Int(res.Deleted)),
		atom.O("dry_run", atom.Bool(res.DryRun)),
	)
	if err := p.store.RecordRun(ctx, run); err != nil {
		log.WithError(err).Warn("failed to record dedup run")
	}
}
