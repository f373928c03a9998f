package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Testdata(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/dedup_then_aggregate.yaml")
	require.NoError(t, err)

	assert.Equal(t, "dedup_then_aggregate", s.Name)
	assert.Equal(t, filepath.Join("testdata", "pipeline.yaml"), s.Pipeline)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, OpIngest, s.Steps[0].Op)
	assert.Len(t, s.Steps[0].Values, 4)
	assert.Equal(t, 2, s.Steps[3].Workers)
	assert.Len(t, s.Assertions, 8)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: d
steps:
  - op: dedup
assertion:
  - type: tickers
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Name:        "s",
			Description: "d",
			Steps:       []Step{{Op: OpDedup}},
			Assertions:  []Assertion{{Type: AssertTickers}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"valid", func(s *Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"missing pipeline", func(s *Scenario) { s.Pipeline = "/does/not/exist.yaml" }, "pipeline file not found"},
		{"empty op", func(s *Scenario) { s.Steps = []Step{{}} }, "steps[0]: op is required"},
		{"unknown op", func(s *Scenario) { s.Steps = []Step{{Op: "compact"}} }, `unknown op "compact"`},
		{"ingest bad kind", func(s *Scenario) {
			s.Steps = []Step{{Op: OpIngest, Kind: "quotes", Values: []map[string]any{{}}}}
		}, "unknown atom kind"},
		{"ingest no values", func(s *Scenario) { s.Steps = []Step{{Op: OpIngest, Kind: "raw"}} }, "values are required"},
		{"negative workers", func(s *Scenario) { s.Steps = []Step{{Op: OpAggregate, Workers: -1}} }, "workers must be non-negative"},
		{"assertion no type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "final_state"}} }, "unknown assertion type"},
		{"trace_order no ops", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceOrder}} }, "ops list is required"},
		{"trace_count no op", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceCount}} }, "op is required"},
		{"atom_count bad kind", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertAtomCount, Kind: "x"}} }, "unknown atom kind"},
		{"negative count", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertDistinctCount, Count: -1}} }, "count must be non-negative"},
		{"canonical no ticker", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertCanonical, Absent: true}} }, "ticker is required"},
		{"canonical neither", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertCanonical, Ticker: "A"}} }, "exactly one of expect or absent"},
		{"canonical both", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertCanonical, Ticker: "A", Absent: true, Expect: map[string]any{"a": 1}}}
		}, "exactly one of expect or absent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateScenario(&s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
