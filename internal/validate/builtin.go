package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/otri/internal/atom"
)

// lookup returns the value under key. A missing key fails only when
// required; present reports whether the caller has anything to check.
func lookup(value atom.Object, key string, required bool) (v atom.Value, present bool, err error) {
	v, ok := value[key]
	if !ok {
		if required {
			return nil, false, fmt.Errorf("missing field %q", key)
		}
		return nil, false, nil
	}
	return v, true, nil
}

func lookupString(value atom.Object, key string, required bool) (string, bool, error) {
	v, present, err := lookup(value, key, required)
	if !present {
		return "", false, err
	}
	s, ok := v.(atom.String)
	if !ok {
		return "", false, fmt.Errorf("field %q is %s, want string", key, atom.TypeName(v))
	}
	return string(s), true, nil
}

// Required fails when any of keys is absent. A key holding null counts as
// absent.
func Required(keys ...string) Check {
	return Func("required("+strings.Join(keys, ",")+")", func(value atom.Object) error {
		var missing []string
		for _, k := range keys {
			if v, ok := value[k]; !ok || isNull(v) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

func isNull(v atom.Value) bool {
	switch v.(type) {
	case nil, atom.Null:
		return true
	}
	return false
}

// Ticker fails unless the value carries a non-empty string ticker.
func Ticker() Check {
	return Func("ticker", func(value atom.Object) error {
		_, err := atom.Ticker(value)
		return err
	})
}

// OneOf fails when the field holds a value not structurally equal to any of
// allowed.
func OneOf(key string, allowed []atom.Value, required bool) Check {
	return Func("one_of("+key+")", func(value atom.Object) error {
		v, present, err := lookup(value, key, required)
		if !present {
			return err
		}
		for _, a := range allowed {
			if atom.Equal(v, a) {
				return nil
			}
		}
		got, _ := atom.MarshalCanonical(v)
		return fmt.Errorf("field %q value %s is not an allowed value", key, got)
	})
}

// TimeFormat fails when the field is not a string parseable with layout.
func TimeFormat(key, layout string, required bool) Check {
	return Func("time_format("+key+")", func(value atom.Object) error {
		s, present, err := lookupString(value, key, required)
		if !present {
			return err
		}
		if _, err := time.Parse(layout, s); err != nil {
			return fmt.Errorf("field %q: %q does not match layout %q", key, s, layout)
		}
		return nil
	})
}

// TimeBetween fails when the field, parsed with layout, lies outside the
// window from start to end. A zero start or end leaves that side open.
func TimeBetween(key, layout string, start, end time.Time, inclusive bool) Check {
	return Func("time_between("+key+")", func(value atom.Object) error {
		s, present, err := lookupString(value, key, true)
		if !present {
			return err
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return fmt.Errorf("field %q: %q does not match layout %q", key, s, layout)
		}

		before := func(a, b time.Time) bool {
			if inclusive {
				return a.Before(b)
			}
			return !a.After(b)
		}
		if !start.IsZero() && before(t, start) {
			return fmt.Errorf("field %q: %s is before %s", key, s, start.Format(layout))
		}
		if !end.IsZero() && before(end, t) {
			return fmt.Errorf("field %q: %s is after %s", key, s, end.Format(layout))
		}
		return nil
	})
}

// Range fails when the numeric field lies outside [min, max].
func Range(key string, min, max float64, required bool) Check {
	return Func(fmt.Sprintf("range(%s)", key), func(value atom.Object) error {
		v, present, err := lookup(value, key, required)
		if !present {
			return err
		}
		f, ok := atom.AsFloat(v)
		if !ok {
			return fmt.Errorf("field %q is %s, want number", key, atom.TypeName(v))
		}
		if f < min || f > max {
			return fmt.Errorf("field %q: %v outside [%v, %v]", key, f, min, max)
		}
		return nil
	})
}

// Pattern fails when the string field does not match expr.
func Pattern(key, expr string, required bool) (Check, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern for %q: %w", key, err)
	}
	return Func("pattern("+key+")", func(value atom.Object) error {
		s, present, err := lookupString(value, key, required)
		if !present {
			return err
		}
		if !re.MatchString(s) {
			return fmt.Errorf("field %q: %q does not match %s", key, s, re)
		}
		return nil
	}), nil
}
