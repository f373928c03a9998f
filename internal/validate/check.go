package validate

import (
	"github.com/roach88/otri/internal/atom"
)

// Check is a pure predicate over an atom value. Evaluate returns nil when
// the value passes; the error text is the failure reason otherwise.
type Check interface {
	Name() string
	Evaluate(value atom.Object) error
}

// Func adapts a function to the Check interface.
func Func(name string, fn func(atom.Object) error) Check {
	return funcCheck{name: name, fn: fn}
}

type funcCheck struct {
	name string
	fn   func(atom.Object) error
}

func (c funcCheck) Name() string { return c.name }

func (c funcCheck) Evaluate(value atom.Object) error { return c.fn(value) }
