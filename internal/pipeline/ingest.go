package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/logging"
	"github.com/roach88/otri/internal/metrics"
	"github.com/roach88/otri/internal/validate"
)

// Operation names ingestion in metrics.
const Operation = "ingest"

// Inserter persists admitted atoms. *store.Store implements it.
type Inserter interface {
	InsertRaw(ctx context.Context, value atom.Object) (int64, error)
	InsertMetadata(ctx context.Context, value atom.Object) (int64, error)
}

// Rejection is a candidate that failed validation.
type Rejection struct {
	Index   int      `json:"index"`
	Reasons []string `json:"reasons"`
}

// Summary describes one ingestion batch.
type Summary struct {
	Kind     atom.Kind   `json:"kind"`
	Read     int         `json:"read"`
	Admitted int         `json:"admitted"`
	IDs      []int64     `json:"ids"`
	Rejected []Rejection `json:"rejected"`
}

// Ingestor validates candidate values and inserts the admissible ones.
type Ingestor struct {
	store      Inserter
	validators map[atom.Kind]*validate.Validator
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithValidator gates atoms of kind with v.
func WithValidator(kind atom.Kind, v *validate.Validator) IngestOption {
	return func(in *Ingestor) { in.validators[kind] = v }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) IngestOption {
	return func(in *Ingestor) { in.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) IngestOption {
	return func(in *Ingestor) { in.metrics = m }
}

// NewIngestor creates an Ingestor over s. Kinds without a validator admit
// everything.
func NewIngestor(s Inserter, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		store:      s,
		validators: make(map[atom.Kind]*validate.Validator),
		log:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest validates one value and inserts it when admissible. The returned
// id is zero for a rejected value. Only storage failures are errors.
func (in *Ingestor) Ingest(ctx context.Context, kind atom.Kind, value atom.Object) (int64, validate.VerdictSet, error) {
	var verdicts validate.VerdictSet
	if v := in.validators[kind]; v != nil {
		verdicts = v.Validate(value)
	}
	if !verdicts.Admissible() {
		in.metrics.AtomRejected(string(kind))
		for _, f := range verdicts.Failures() {
			in.metrics.CheckFailed(f.Check)
		}
		return 0, verdicts, nil
	}

	var (
		id  int64
		err error
	)
	switch kind {
	case atom.KindRaw:
		id, err = in.store.InsertRaw(ctx, value)
	case atom.KindMetadata:
		id, err = in.store.InsertMetadata(ctx, value)
	default:
		return 0, verdicts, fmt.Errorf("unknown atom kind %q", kind)
	}
	if err != nil {
		return 0, verdicts, err
	}
	in.metrics.AtomIngested(string(kind))
	return id, verdicts, nil
}

// IngestAll ingests values in order. It stops at the first storage
// failure, returning the summary of what was done so far.
func (in *Ingestor) IngestAll(ctx context.Context, kind atom.Kind, values []atom.Object) (Summary, error) {
	defer in.metrics.ObserveRun(Operation, time.Now())

	sum := Summary{Kind: kind, Read: len(values), IDs: []int64{}, Rejected: []Rejection{}}
	for i, value := range values {
		id, verdicts, err := in.Ingest(ctx, kind, value)
		if err != nil {
			return sum, fmt.Errorf("ingest value %d: %w", i, err)
		}
		if !verdicts.Admissible() {
			reasons := verdicts.Reasons()
			sum.Rejected = append(sum.Rejected, Rejection{Index: i, Reasons: reasons})
			in.log.WithFields(logrus.Fields{"index": i, "kind": kind, "reasons": reasons}).Warn("rejected candidate atom")
			continue
		}
		sum.Admitted++
		sum.IDs = append(sum.IDs, id)
		in.log.WithFields(logrus.Fields{"atom_id": id, "kind": kind}).Debug("atom inserted")
	}

	in.log.WithFields(logrus.Fields{
		"kind":     kind,
		"read":     sum.Read,
		"admitted": sum.Admitted,
		"rejected": len(sum.Rejected),
	}).Info("ingestion finished")
	return sum, nil
}
