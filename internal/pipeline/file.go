package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/metadata"
	"github.com/roach88/otri/internal/validate"
)

// Check types understood in a pipeline file.
const (
	CheckRequired    = "required"
	CheckTicker      = "ticker"
	CheckOneOf       = "one_of"
	CheckTimeFormat  = "time_format"
	CheckTimeBetween = "time_between"
	CheckRange       = "range"
	CheckPattern     = "pattern"
	CheckSchema      = "schema"
)

// File is a parsed pipeline file.
//
//	checks:
//	  - type: ticker
//	  - type: time_format
//	    field: date
//	    layout: "2006-01-02"
//	    kinds: [raw]
//	merge:
//	  default: last_wins
//	  fields:
//	    sectors: union
type File struct {
	Checks []CheckSpec          `yaml:"checks" validate:"dive"`
	Merge  metadata.MergePolicy `yaml:"merge"`
}

// CheckSpec declares one check. Which fields apply depends on Type.
type CheckSpec struct {
	Type      string   `yaml:"type" validate:"required,oneof=required ticker one_of time_format time_between range pattern schema"`
	Kinds     []string `yaml:"kinds,omitempty" validate:"dive,oneof=raw metadata"`
	Field     string   `yaml:"field,omitempty"`
	Fields    []string `yaml:"fields,omitempty"`
	Values    []any    `yaml:"values,omitempty"`
	Layout    string   `yaml:"layout,omitempty"`
	Start     string   `yaml:"start,omitempty"`
	End       string   `yaml:"end,omitempty"`
	Inclusive bool     `yaml:"inclusive,omitempty"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	Regexp    string   `yaml:"regexp,omitempty"`
	Name      string   `yaml:"name,omitempty"`
	CUE       string   `yaml:"cue,omitempty"`
	Required  bool     `yaml:"required,omitempty"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses the pipeline file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses a pipeline file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}

	if err := structValidator.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	if err := f.Merge.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: merge: %w", err)
	}
	// Build once so that every error surfaces at load time.
	for i, spec := range f.Checks {
		if _, err := spec.Build(); err != nil {
			return nil, fmt.Errorf("invalid pipeline: checks[%d]: %w", i, err)
		}
	}
	return &f, nil
}

// Validator returns a Validator holding the checks that apply to kind, in
// file order. A check without kinds applies to both.
func (f *File) Validator(kind atom.Kind) (*validate.Validator, error) {
	v := validate.New()
	for i, spec := range f.Checks {
		if !spec.appliesTo(kind) {
			continue
		}
		c, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		v.Register(c)
	}
	return v, nil
}

func (s CheckSpec) appliesTo(kind atom.Kind) bool {
	return len(s.Kinds) == 0 || slices.Contains(s.Kinds, string(kind))
}

// Build constructs the check described by s.
func (s CheckSpec) Build() (validate.Check, error) {
	needField := func() error {
		if strings.TrimSpace(s.Field) == "" {
			return fmt.Errorf("%s check needs a field", s.Type)
		}
		return nil
	}
	needLayout := func() error {
		if err := needField(); err != nil {
			return err
		}
		if s.Layout == "" {
			return fmt.Errorf("%s check needs a layout", s.Type)
		}
		return nil
	}

	switch s.Type {
	case CheckRequired:
		fields := s.Fields
		if s.Field != "" {
			fields = append([]string{s.Field}, fields...)
		}
		if len(fields) == 0 {
			return nil, errors.New("required check needs fields")
		}
		return validate.Required(fields...), nil

	case CheckTicker:
		return validate.Ticker(), nil

	case CheckOneOf:
		if err := needField(); err != nil {
			return nil, err
		}
		if len(s.Values) == 0 {
			return nil, errors.New("one_of check needs values")
		}
		allowed := make([]atom.Value, 0, len(s.Values))
		for _, raw := range s.Values {
			v, err := atom.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("one_of value: %w", err)
			}
			allowed = append(allowed, v)
		}
		return validate.OneOf(s.Field, allowed, s.Required), nil

	case CheckTimeFormat:
		if err := needLayout(); err != nil {
			return nil, err
		}
		return validate.TimeFormat(s.Field, s.Layout, s.Required), nil

	case CheckTimeBetween:
		if err := needLayout(); err != nil {
			return nil, err
		}
		start, err := parseBound(s.Layout, s.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		end, err := parseBound(s.Layout, s.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return nil, errors.New("end is before start")
		}
		return validate.TimeBetween(s.Field, s.Layout, start, end, s.Inclusive), nil

	case CheckRange:
		if err := needField(); err != nil {
			return nil, err
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if s.Min != nil {
			lo = *s.Min
		}
		if s.Max != nil {
			hi = *s.Max
		}
		if lo > hi {
			return nil, fmt.Errorf("min %v is greater than max %v", lo, hi)
		}
		return validate.Range(s.Field, lo, hi, s.Required), nil

	case CheckPattern:
		if err := needField(); err != nil {
			return nil, err
		}
		return validate.Pattern(s.Field, s.Regexp, s.Required)

	case CheckSchema:
		if s.Name == "" || s.CUE == "" {
			return nil, errors.New("schema check needs a name and cue source")
		}
		return validate.Schema(s.Name, s.CUE)

	default:
		return nil, fmt.Errorf("unknown check type %q", s.Type)
	}
}

func parseBound(layout, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(layout, s)
}
