package atom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainAtom separates atom fingerprints from any other hash over the same bytes.
// The version suffix allows a future algorithm migration.
const DomainAtom = "otri/atom/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the content hash of v's canonical encoding.
// Structurally equal values share a fingerprint.
func Fingerprint(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainAtom, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the value is known to be encodable.
func MustFingerprint(v Value) string {
	fp, err := Fingerprint(v)
	if err != nil {
		panic(err)
	}
	return fp
}
