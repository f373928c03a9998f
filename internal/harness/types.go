package harness

import "github.com/roach88/otri/internal/atom"

// TraceEvent is the recorded outcome of one step.
type TraceEvent struct {
	Seq     int64       `json:"seq"`
	Op      string      `json:"op"`
	Outcome atom.Object `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State is the store contents after the last step.
	State atom.Object `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace records a step outcome.
func (r *Result) AddTrace(op string, outcome atom.Object, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Op: op, Outcome: outcome})
}
