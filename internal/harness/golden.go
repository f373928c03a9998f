package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/otri/internal/atom"
)

// Snapshot captures the trace and final state of a scenario execution.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	State        atom.Object
}

// Canonical renders the snapshot as canonical JSON.
func (s *Snapshot) Canonical() ([]byte, error) {
	trace := make(atom.Array, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = atom.NewObject(
			atom.O("seq", atom.Int(event.Seq)),
			atom.O("op", atom.String(event.Op)),
			atom.O("outcome", event.Outcome),
		)
	}

	state := s.State
	if state == nil {
		state = atom.Object{}
	}
	return atom.MarshalCanonical(atom.NewObject(
		atom.O("scenario_name", atom.String(s.ScenarioName)),
		atom.O("trace", trace),
		atom.O("state", state),
	))
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		State:        result.State,
	}
	data, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
