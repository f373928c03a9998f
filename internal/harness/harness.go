package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/dedup"
	"github.com/roach88/otri/internal/logging"
	"github.com/roach88/otri/internal/metadata"
	"github.com/roach88/otri/internal/pipeline"
	"github.com/roach88/otri/internal/store"
)

// Harness executes scenario steps against one store.
type Harness struct {
	store    *store.Store
	pipeline *pipeline.File
	log      logrus.FieldLogger
	seq      int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A step that fails with an error (as opposed to an unmet expectation)
// aborts the run.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	pf := &pipeline.File{}
	if scenario.Pipeline != "" {
		if pf, err = pipeline.Load(scenario.Pipeline); err != nil {
			return nil, err
		}
	}

	h := &Harness{
		store:    st,
		pipeline: pf,
		log:      logging.Discard(),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		h.seq++
		result.AddTrace(step.Op, outcome, h.seq)

		if msg := matchSubset(outcome, step.Expect); msg != "" {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}

	if result.State, err = captureState(ctx, st); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (atom.Object, error) {
	switch step.Op {
	case OpIngest:
		return h.ingest(ctx, step)
	case OpDedup:
		var opts []dedup.Option
		opts = append(opts, dedup.WithLogger(h.log))
		if step.DryRun {
			opts = append(opts, dedup.WithDryRun())
		}
		res, err := dedup.New(h.store, opts...).Run(ctx)
		if err != nil {
			return nil, err
		}
		return toOutcome(res)
	case OpAggregate:
		opts := []metadata.Option{
			metadata.WithPolicy(h.pipeline.Merge),
			metadata.WithLogger(h.log),
		}
		if step.Workers > 0 {
			opts = append(opts, metadata.WithWorkers(step.Workers))
		}
		report, err := metadata.NewAggregator(h.store, opts...).Run(ctx)
		if err != nil {
			return nil, err
		}
		return toOutcome(report)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) ingest(ctx context.Context, step Step) (atom.Object, error) {
	kind, err := atom.ParseKind(step.Kind)
	if err != nil {
		return nil, err
	}

	values := make([]atom.Object, len(step.Values))
	for i, raw := range step.Values {
		if values[i], err = stepObject(i, raw); err != nil {
			return nil, err
		}
	}

	v, err := h.pipeline.Validator(kind)
	if err != nil {
		return nil, err
	}
	in := pipeline.NewIngestor(h.store,
		pipeline.WithValidator(kind, v),
		pipeline.WithLogger(h.log),
	)
	sum, err := in.IngestAll(ctx, kind, values)
	if err != nil {
		return nil, err
	}
	return toOutcome(sum)
}

// toOutcome turns a step result into an Object through its JSON form,
// dropping the run id.
// stepObject converts the i-th value of an ingest step into an object.
func stepObject(i int, raw any) (atom.Object, error) {
	v, err := atom.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("values[%d]: %w", i, err)
	}
	obj, ok := v.(atom.Object)
	if !ok {
		return nil, fmt.Errorf("values[%d]: expected object", i)
	}
	return obj, nil
}

func toOutcome(v any) (atom.Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	obj, err := atom.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	delete(obj, "run_id")
	return obj, nil
}

// captureState reads every atom and every canonical record value.
func captureState(ctx context.Context, st *store.Store) (atom.Object, error) {
	atoms, err := st.ReadRawAtoms(ctx, "")
	if err != nil {
		return nil, err
	}
	records, err := st.ReadAllCanonicalMetadata(ctx)
	if err != nil {
		return nil, err
	}

	atomList := make(atom.Array, len(atoms))
	for i, a := range atoms {
		atomList[i] = atom.NewObject(
			atom.O("id", atom.Int(a.ID)),
			atom.O("kind", atom.String(a.Kind)),
			atom.O("value", a.Value),
		)
	}
	canonical := make(atom.Array, len(records))
	for i, r := range records {
		canonical[i] = r.Value
	}

	return atom.NewObject(
		atom.O("atoms", atomList),
		atom.O("canonical", canonical),
	), nil
}
