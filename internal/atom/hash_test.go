package atom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := NewObject(O("ticker", String("AAPL")), O("close", Float(189.84)))
	b := NewObject(O("close", Float(189.84)), O("ticker", String("AAPL")))

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, fa)
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	a := MustFingerprint(Object{"ticker": String("AAPL")})
	b := MustFingerprint(Object{"ticker": String("MSFT")})
	assert.NotEqual(t, a, b)
}

func TestFingerprintDomainSeparated(t *testing.T) {
	v := Object{"a": Int(1)}
	canonical, err := MarshalCanonical(v)
	require.NoError(t, err)

	assert.Equal(t, hashWithDomain(DomainAtom, canonical), MustFingerprint(v))
	assert.NotEqual(t, hashWithDomain("other/v1", canonical), MustFingerprint(v))
}

func TestMustFingerprintPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustFingerprint(Object{"x": Float(math.NaN())})
	})
}
