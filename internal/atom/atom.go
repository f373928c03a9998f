package atom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind tags an atom with the logical input it belongs to.
type Kind string

const (
	// KindRaw marks retrieved or derived data such as price bars.
	KindRaw Kind = "raw"

	// KindMetadata marks provider-reported instrument metadata fragments.
	KindMetadata Kind = "metadata"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRaw, KindMetadata:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown atom kind %q: must be %q or %q", s, KindRaw, KindMetadata)
	}
}

// Atom is an identified record holding one structured value.
// ID is assigned by the store on insert and never reused. Value is never
// mutated after insertion; corrections are new atoms.
type Atom struct {
	ID    int64  `json:"id"`
	Kind  Kind   `json:"kind"`
	Value Object `json:"value"`
}

// TickerKey is the field identifying the instrument a metadata atom describes.
const TickerKey = "ticker"

// ErrNoTicker is returned by Ticker when the value has no ticker field.
var ErrNoTicker = errors.New("missing ticker field")

// Ticker extracts the ticker of a metadata value in Unicode NFC. The ticker
// must be a non-blank string.
func Ticker(v Object) (string, error) {
	raw, ok := v[TickerKey]
	if !ok {
		return "", ErrNoTicker
	}
	s, ok := raw.(String)
	if !ok {
		return "", fmt.Errorf("ticker field is %s, want string", TypeName(raw))
	}
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("ticker field is blank")
	}
	return norm.NFC.String(string(s)), nil
}
