// Package atom defines the uniform record model stored by OTRI.
//
// An atom is an identified, immutable record holding one structured value.
// Values are a closed variant (Null, Bool, Int, Float, String, Array, Object)
// rather than map[string]any, so validators and mergers switch over a known
// set of shapes.
//
// Every persisted or compared value goes through MarshalCanonical, an RFC 8785
// encoding. Two values are duplicates exactly when their canonical encodings
// are byte-identical; Fingerprint hashes that encoding.
//
// This package imports nothing internal.
package atom
