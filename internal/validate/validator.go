package validate

import (
	"fmt"

	"github.com/roach88/otri/internal/atom"
)

// reasonUnknown is recorded when a check fails with an empty error text.
const reasonUnknown = "check failed"

// Validator is a registry of checks. Register is not safe to call while
// Validate is running on another goroutine; Validate on its own is.
type Validator struct {
	checks []Check
}

// New creates a Validator with the given checks registered in order.
func New(checks ...Check) *Validator {
	v := &Validator{}
	v.Register(checks...)
	return v
}

// Register appends checks. Registering the same check twice runs it twice.
func (v *Validator) Register(checks ...Check) {
	for _, c := range checks {
		if c != nil {
			v.checks = append(v.checks, c)
		}
	}
}

// Checks returns the registered checks in registration order.
// The returned slice is a copy.
func (v *Validator) Checks() []Check {
	out := make([]Check, len(v.checks))
	copy(out, v.checks)
	return out
}

// Len returns the number of registered checks.
func (v *Validator) Len() int {
	return len(v.checks)
}

// Validate evaluates every registered check against value. It never
// short-circuits. A validator with no checks admits everything.
func (v *Validator) Validate(value atom.Object) VerdictSet {
	set := VerdictSet{Verdicts: make([]Verdict, 0, len(v.checks))}
	for _, c := range v.checks {
		set.Verdicts = append(set.Verdicts, evaluate(c, value))
	}
	return set
}

// evaluate runs one check, turning a panic into a failed verdict.
func evaluate(c Check, value atom.Object) (verdict Verdict) {
	verdict.Check = c.Name()
	defer func() {
		if r := recover(); r != nil {
			verdict.Passed = false
			verdict.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := c.Evaluate(value); err != nil {
		verdict.Reason = err.Error()
		if verdict.Reason == "" {
			verdict.Reason = reasonUnknown
		}
		return verdict
	}
	verdict.Passed = true
	return verdict
}

// Verdict is the outcome of one check.
type Verdict struct {
	Check  string `json:"check"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// VerdictSet holds one Verdict per registered check, in registration order.
type VerdictSet struct {
	Verdicts []Verdict `json:"verdicts"`
}

// Admissible reports whether every check passed.
func (s VerdictSet) Admissible() bool {
	for _, v := range s.Verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed verdicts.
func (s VerdictSet) Failures() []Verdict {
	var out []Verdict
	for _, v := range s.Verdicts {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

// Reasons returns "check: reason" for every failed verdict.
func (s VerdictSet) Reasons() []string {
	var out []string
	for _, v := range s.Failures() {
		out = append(out, v.Check+": "+v.Reason)
	}
	return out
}
