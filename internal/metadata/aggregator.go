package metadata

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/logging"
	"github.com/roach88/otri/internal/metrics"
	"github.com/roach88/otri/internal/store"
)

// Operation names aggregation runs in the audit log and metrics.
const Operation = "metadata"

const (
	defaultWorkers = 4
	defaultRetries = 3
	retryBackoff   = 10 * time.Millisecond
)

// Store is the part of the atom store the aggregator reads and writes.
// *store.Store implements it.
type Store interface {
	FetchAllMetadataAtoms(ctx context.Context) ([]atom.Atom, error)
	UpsertCanonicalMetadata(ctx context.Context, ticker string, value atom.Object) (int64, error)
}

// runRecorder is implemented by stores that keep an audit log.
type runRecorder interface {
	RecordRun(ctx context.Context, run store.Run) error
}

// MalformedAtom is a metadata atom left out of aggregation.
type MalformedAtom struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// Failure is a ticker whose canonical record could not be written.
type Failure struct {
	Ticker   string `json:"ticker"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
	Err      error  `json:"-"`
}

// Report summarizes one aggregation run.
type Report struct {
	RunID     string          `json:"run_id"`
	Atoms     int             `json:"atoms"`
	Tickers   int             `json:"tickers"`
	Upserted  int             `json:"upserted"`
	Malformed []MalformedAtom `json:"malformed"`
	Failures  []Failure       `json:"failures"`
}

// OK reports whether every ticker was upserted.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Outcome returns the audit outcome of the run.
func (r Report) Outcome() string {
	switch {
	case len(r.Failures) == 0:
		return store.OutcomeCompleted
	case r.Upserted > 0:
		return store.OutcomePartial
	default:
		return store.OutcomeFailed
	}
}

// Aggregator merges metadata atoms into canonical records.
type Aggregator struct {
	store   Store
	policy  MergePolicy
	workers int
	retries int
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPolicy sets the merge policy.
func WithPolicy(mp MergePolicy) Option {
	return func(a *Aggregator) { a.policy = mp }
}

// WithWorkers bounds the number of tickers upserted concurrently.
// Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(a *Aggregator) { a.workers = max(n, 1) }
}

// WithRetries sets how many times an upsert that lost a race is retried.
func WithRetries(n int) Option {
	return func(a *Aggregator) { a.retries = max(n, 0) }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an Aggregator over s.
func NewAggregator(s Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   s,
		workers: defaultWorkers,
		retries: defaultRetries,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// group is the atoms of one ticker and their merged value.
type group struct {
	ticker string
	atoms  []atom.Atom
	merged atom.Object
}

// Run performs one aggregation. The error is non-nil only when the
// metadata atoms cannot be fetched; per-ticker failures are in the Report.
func (a *Aggregator) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	defer a.metrics.ObserveRun(Operation, start)

	run := store.NewRun(Operation)
	log := a.log.WithField("run_id", run.ID)
	report := Report{
		RunID:     run.ID,
		Malformed: []MalformedAtom{},
		Failures:  []Failure{},
	}

	atoms, err := a.store.FetchAllMetadataAtoms(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch metadata atoms: %w", err)
	}
	report.Atoms = len(atoms)

	groups := a.partition(atoms, &report, log)
	report.Tickers = len(groups)

	for _, g := range groups {
		g.merged = Merge(g.atoms, a.policy)
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(a.workers)
	for _, g := range groups {
		eg.Go(func() error {
			attempts, err := a.upsert(ctx, g)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{
					Ticker:   g.ticker,
					Attempts: attempts,
					Error:    err.Error(),
					Err:      err,
				})
				log.WithError(err).WithField("ticker", g.ticker).Error("canonical upsert failed")
				return nil
			}
			report.Upserted++
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors

	slices.SortFunc(report.Failures, func(x, y Failure) int {
		return strings.Compare(x.Ticker, y.Ticker)
	})

	log.WithFields(logrus.Fields{
		"atoms":     report.Atoms,
		"tickers":   report.Tickers,
		"upserted":  report.Upserted,
		"malformed": len(report.Malformed),
		"failures":  len(report.Failures),
	}).Info("metadata aggregation finished")

	a.record(ctx, log, run, report)
	return report, nil
}

// partition groups atoms by ticker, sorted by ticker. Atoms without a
// usable ticker go to report.Malformed.
func (a *Aggregator) partition(atoms []atom.Atom, report *Report, log logrus.FieldLogger) []*group {
	byTicker := make(map[string]*group)
	for _, at := range atoms {
		ticker, err := atom.Ticker(at.Value)
		if err != nil {
			report.Malformed = append(report.Malformed, MalformedAtom{ID: at.ID, Reason: err.Error()})
			a.metrics.MalformedAtom()
			log.WithField("atom_id", at.ID).WithError(err).Warn("skipping malformed metadata atom")
			continue
		}
		g, ok := byTicker[ticker]
		if !ok {
			g = &group{ticker: ticker}
			byTicker[ticker] = g
		}
		g.atoms = append(g.atoms, at)
	}

	slices.SortFunc(report.Malformed, func(x, y MalformedAtom) int {
		return cmp.Compare(x.ID, y.ID)
	})

	groups := make([]*group, 0, len(byTicker))
	for _, g := range byTicker {
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(x, y *group) int {
		return strings.Compare(x.ticker, y.ticker)
	})
	return groups
}

// upsert writes one canonical record, retrying on ConflictError. It
// returns the number of attempts made.
func (a *Aggregator) upsert(ctx context.Context, g *group) (int, error) {
	log := a.log.WithField("ticker", g.ticker)
	attempts := 0
	for {
		attempts++
		_, err := a.store.UpsertCanonicalMetadata(ctx, g.ticker, g.merged)
		if err == nil {
			a.metrics.Upsert(metrics.UpsertOK)
			log.WithField("atoms", len(g.atoms)).Debug("canonical record upserted")
			return attempts, nil
		}
		if !store.IsConflict(err) {
			a.metrics.Upsert(metrics.UpsertFailed)
			return attempts, err
		}

		a.metrics.Upsert(metrics.UpsertConflict)
		if attempts > a.retries {
			return attempts, fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}
		log.WithField("attempt", attempts).Debug("upsert conflict, retrying")

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(time.Duration(attempts) * retryBackoff):
		}
	}
}

func (a *Aggregator) record(ctx context.Context, log logrus.FieldLogger, run store.Run, report Report) {
	rec, ok := a.store.(runRecorder)
	if !ok {
		return
	}
	run.Outcome = report.Outcome()
	run.Detail = atom.NewObject(
		atom.O("atoms", atom.Int(report.Atoms)),
		atom.O("tickers", atom.Int(report.Tickers)),
		atom.O("upserted", atom.Int(report.Upserted)),
		atom.O("malformed", atom.Int(len(report.Malformed))),
		atom.O("failures", atom.Int(len(report.Failures))),
	)
	if err := rec.RecordRun(ctx, run); err != nil {
		log.WithError(err).Warn("failed to record metadata run")
	}
}
