package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Op)
		}
	}

	return buf.String()
}

// assertTraceOrder checks that the listed ops appear in the specified order.
// Steps don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Op == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual:   fmt.Sprintf("no %s step after position %d", want, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the op ran exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertAtomCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	atoms, err := st.ReadRawAtoms(ctx, atom.Kind(assertion.Kind))
	if err != nil {
		return err
	}
	if len(atoms) != assertion.Count {
		kind := assertion.Kind
		if kind == "" {
			kind = "any"
		}
		return &AssertionError{
			Type:     AssertAtomCount,
			Expected: fmt.Sprintf("%d atoms of kind %s", assertion.Count, kind),
			Actual:   fmt.Sprintf("%d atoms", len(atoms)),
		}
	}
	return nil
}

func assertDistinctCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	var distinct int64
	err := st.WithRawLock(ctx, func(tx *store.RawTx) error {
		var err error
		if distinct, err = tx.CountDistinct(ctx); err != nil {
			return err
		}
		return store.ErrRollback
	})
	if err != nil {
		return err
	}
	if distinct != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertDistinctCount,
			Expected: fmt.Sprintf("%d distinct values", assertion.Count),
			Actual:   fmt.Sprintf("%d distinct values", distinct),
		}
	}
	return nil
}

func assertCanonical(ctx context.Context, st *store.Store, assertion Assertion) error {
	rec, err := st.ReadCanonicalMetadata(ctx, assertion.Ticker)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if assertion.Absent {
			return nil
		}
		return &AssertionError{
			Type:     AssertCanonical,
			Expected: fmt.Sprintf("canonical record for %s", assertion.Ticker),
			Actual:   "record not found",
		}
	case err != nil:
		return err
	}

	if assertion.Absent {
		return &AssertionError{
			Type:     AssertCanonical,
			Expected: fmt.Sprintf("no canonical record for %s", assertion.Ticker),
			Actual:   fmt.Sprintf("record id %d", rec.ID),
		}
	}
	if msg := matchSubset(rec.Value, assertion.Expect); msg != "" {
		return &AssertionError{
			Type:     AssertCanonical,
			Expected: fmt.Sprintf("%s record matching %v", assertion.Ticker, assertion.Expect),
			Actual:   msg,
		}
	}
	return nil
}

func assertTickers(ctx context.Context, st *store.Store, assertion Assertion) error {
	tickers, err := st.ListTickers(ctx)
	if err != nil {
		return err
	}
	want := slices.Clone(assertion.Tickers)
	slices.Sort(want)
	if !slices.Equal(tickers, want) {
		return &AssertionError{
			Type:     AssertTickers,
			Expected: fmt.Sprintf("tickers %v", want),
			Actual:   fmt.Sprintf("tickers %v", tickers),
		}
	}
	return nil
}

// matchSubset checks that actual holds every key of expected with an equal
// value, comparing canonical encodings. Extra keys in actual are ignored.
// Returns a description of the first mismatch, or "" when all keys match.
func matchSubset(actual atom.Object, expected map[string]any) string {
	if len(expected) == 0 {
		return ""
	}

	want, err := atom.FromGo(expected)
	if err != nil {
		return fmt.Sprintf("invalid expectation: %v", err)
	}
	wantObj := want.(atom.Object)

	for _, key := range wantObj.SortedKeys() {
		got, ok := actual[key]
		if !ok {
			return fmt.Sprintf("field %q missing", key)
		}
		if !atom.Equal(got, wantObj[key]) {
			gotText, _ := atom.MarshalCanonical(got)
			wantText, _ := atom.MarshalCanonical(wantObj[key])
			return fmt.Sprintf("field %q = %s, expected %s", key, gotText, wantText)
		}
	}
	return ""
}

// EvaluateAssertions evaluates all assertions against the result and the
// store. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertAtomCount:
			err = assertAtomCount(ctx, st, assertion)
		case AssertDistinctCount:
			err = assertDistinctCount(ctx, st, assertion)
		case AssertCanonical:
			err = assertCanonical(ctx, st, assertion)
		case AssertTickers:
			err = assertTickers(ctx, st, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
