package metadata

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/roach88/otri/internal/atom"
)

// Policy resolves a field present in more than one atom of a group.
type Policy string

const (
	// LastWins keeps the value from the atom with the highest id.
	LastWins Policy = "last_wins"

	// FirstWins keeps the value from the atom with the lowest id.
	FirstWins Policy = "first_wins"

	// Union concatenates arrays, dropping elements already present.
	// Non-array values fall back to LastWins.
	Union Policy = "union"

	// Deep merges objects key by key: nested objects recurse, nested arrays
	// are unioned, everything else is LastWins. Non-object values fall back
	// to LastWins.
	Deep Policy = "deep"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case LastWins, FirstWins, Union, Deep:
		return p, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// MergePolicy selects a Policy per field. Fields without an override use
// Default; a zero MergePolicy is LastWins everywhere.
type MergePolicy struct {
	Default Policy            `json:"default,omitempty" yaml:"default,omitempty"`
	Fields  map[string]Policy `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Validate checks every policy name.
func (mp MergePolicy) Validate() error {
	if mp.Default != "" {
		if _, err := ParsePolicy(string(mp.Default)); err != nil {
			return fmt.Errorf("default: %w", err)
		}
	}
	for field, p := range mp.Fields {
		if _, err := ParsePolicy(string(p)); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	return nil
}

func (mp MergePolicy) policyFor(field string) Policy {
	if p, ok := mp.Fields[field]; ok {
		return p
	}
	if mp.Default != "" {
		return mp.Default
	}
	return LastWins
}

// Merge folds the values of atoms into one object, in ascending id order
// regardless of the order of the slice. Null values are treated as absent.
// Neither atoms nor their values are modified.
func Merge(atoms []atom.Atom, mp MergePolicy) atom.Object {
	ordered := slices.Clone(atoms)
	slices.SortFunc(ordered, compareAtoms)

	out := atom.Object{}
	for _, a := range ordered {
		for key, v := range a.Value {
			if isNull(v) {
				continue
			}
			prev, ok := out[key]
			if !ok {
				out[key] = atom.Clone(v)
				continue
			}
			out[key] = resolve(mp.policyFor(key), prev, v)
		}
	}
	return out
}

// compareAtoms orders by id, then by canonical value so that even
// duplicate ids merge the same way in any input order.
func compareAtoms(a, b atom.Atom) int {
	if a.ID != b.ID {
		if a.ID < b.ID {
			return -1
		}
		return 1
	}
	ab, _ := atom.MarshalCanonical(a.Value)
	bb, _ := atom.MarshalCanonical(b.Value)
	return bytes.Compare(ab, bb)
}

// resolve combines an accumulated value with a later one. Both are non-null.
func resolve(p Policy, prev, next atom.Value) atom.Value {
	switch p {
	case FirstWins:
		return prev
	case Union:
		if pa, ok := prev.(atom.Array); ok {
			if na, ok := next.(atom.Array); ok {
				return union(pa, na)
			}
		}
	case Deep:
		if po, ok := prev.(atom.Object); ok {
			if no, ok := next.(atom.Object); ok {
				return deepMerge(po, no)
			}
		}
	}
	return atom.Clone(next)
}

// union returns prev followed by the elements of next not already present.
func union(prev, next atom.Array) atom.Array {
	out := make(atom.Array, 0, len(prev)+len(next))
	seen := make(map[string]bool, len(prev)+len(next))
	for _, arr := range []atom.Array{prev, next} {
		for _, elem := range arr {
			key, err := atom.MarshalCanonical(elem)
			if err == nil && seen[string(key)] {
				continue
			}
			seen[string(key)] = true
			out = append(out, atom.Clone(elem))
		}
	}
	return out
}

func deepMerge(prev, next atom.Object) atom.Object {
	out := prev.Clone()
	for key, v := range next {
		if isNull(v) {
			continue
		}
		p, ok := out[key]
		if !ok {
			out[key] = atom.Clone(v)
			continue
		}
		switch pv := p.(type) {
		case atom.Object:
			if nv, ok := v.(atom.Object); ok {
				out[key] = deepMerge(pv, nv)
				continue
			}
		case atom.Array:
			if nv, ok := v.(atom.Array); ok {
				out[key] = union(pv, nv)
				continue
			}
		}
		out[key] = atom.Clone(v)
	}
	return out
}

func isNull(v atom.Value) bool {
	switch v.(type) {
	case nil, atom.Null:
		return true
	}
	return false
}
