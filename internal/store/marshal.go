package store

import (
	"fmt"

	"github.com/roach88/otri/internal/atom"
)

// encodeValue converts an atom value to canonical JSON TEXT plus its
// fingerprint. Canonical text makes SQL equality coincide with structural
// equality.
func encodeValue(v atom.Object) (text, hash string, err error) {
	if v == nil {
		v = atom.Object{}
	}
	data, err := atom.MarshalCanonical(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal value: %w", err)
	}
	hash, err = atom.Fingerprint(v)
	if err != nil {
		return "", "", err
	}
	return string(data), hash, nil
}

// decodeValue parses stored JSON TEXT back into an object.
func decodeValue(text string) (atom.Object, error) {
	if text == "" || text == "{}" {
		return atom.Object{}, nil
	}
	obj, err := atom.DecodeObject([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return obj, nil
}
