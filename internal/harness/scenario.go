package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/otri/internal/atom"
)

// Scenario defines an end-to-end run over a fresh store.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline is an optional pipeline file providing checks and the merge
	// policy. LoadScenario resolves it relative to the scenario file.
	Pipeline string `yaml:"pipeline,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation against the store.
type Step struct {
	// Op is one of ingest, dedup, aggregate.
	Op string `yaml:"op"`

	// Kind and Values are the candidate atoms of an ingest step.
	Kind   string           `yaml:"kind,omitempty"`
	Values []map[string]any `yaml:"values,omitempty"`

	// DryRun applies to dedup steps.
	DryRun bool `yaml:"dry_run,omitempty"`

	// Workers applies to aggregate steps. Zero keeps the default.
	Workers int `yaml:"workers,omitempty"`

	// Expect is matched against the step outcome (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpIngest    = "ingest"
	OpDedup     = "dedup"
	OpAggregate = "aggregate"
)

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the step operation counted by trace_count.
	Op string `yaml:"op,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number for trace_count, atom_count and
	// distinct_count.
	Count int `yaml:"count,omitempty"`

	// Kind filters atom_count.
	Kind string `yaml:"kind,omitempty"`

	// Ticker selects the canonical record. Expect is a subset of its
	// fields; Absent asserts there is no record.
	Ticker string         `yaml:"ticker,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Absent bool           `yaml:"absent,omitempty"`

	// Tickers is the expected ticker universe for tickers.
	Tickers []string `yaml:"tickers,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertAtomCount     = "atom_count"
	AssertDistinctCount = "distinct_count"
	AssertCanonical     = "canonical"
	AssertTickers       = "tickers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Pipeline != "" && !filepath.IsAbs(scenario.Pipeline) {
		scenario.Pipeline = filepath.Join(filepath.Dir(path), scenario.Pipeline)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Pipeline != "" {
		if _, err := os.Stat(s.Pipeline); os.IsNotExist(err) {
			return fmt.Errorf("pipeline file not found: %s", s.Pipeline)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	switch step.Op {
	case OpIngest:
		if _, err := atom.ParseKind(step.Kind); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if len(step.Values) == 0 {
			return fmt.Errorf("steps[%d]: values are required for ingest", index)
		}
	case OpDedup:
	case OpAggregate:
		if step.Workers < 0 {
			return fmt.Errorf("steps[%d]: workers must be non-negative", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
	case AssertAtomCount:
		if a.Kind != "" {
			if _, err := atom.ParseKind(a.Kind); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertDistinctCount, AssertTickers:
	case AssertCanonical:
		if a.Ticker == "" {
			return fmt.Errorf("assertions[%d]: ticker is required for canonical", index)
		}
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: canonical needs exactly one of expect or absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
