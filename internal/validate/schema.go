package validate

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/otri/internal/atom"
)

// Schema compiles src as a CUE schema and returns a check that unifies each
// value with it. The value passes when the unification is concrete and free
// of conflicts.
//
//	check, err := validate.Schema("bar", `
//	    ticker: string & =~"^[A-Z.]+$"
//	    close:  number & >0
//	`)
func Schema(name, src string) (Check, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, formatCUEError(err))
	}
	return &schemaCheck{name: "schema(" + name + ")", ctx: ctx, schema: schema}, nil
}

type schemaCheck struct {
	name string

	// A cue.Context is not safe for concurrent use.
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

func (c *schemaCheck) Name() string { return c.name }

func (c *schemaCheck) Evaluate(value atom.Object) error {
	data, err := atom.MarshalCanonical(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// JSON is valid CUE.
	v := c.ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}
	if err := c.schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError reduces a CUE error list to its first message.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if path := first.Path(); len(path) > 0 {
		msg = fmt.Sprintf("%s: %s", strings.Join(path, "."), msg)
	}
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return fmt.Errorf("%s", msg)
}
