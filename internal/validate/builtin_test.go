package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otri/internal/atom"
)

func obj(pairs ...atom.Pair) atom.Object {
	return atom.NewObject(pairs...)
}

func TestBuiltinChecks(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	upper, err := Pattern("ticker", `^[A-Z.]+$`, true)
	require.NoError(t, err)

	tests := []struct {
		name    string
		check   Check
		value   atom.Object
		wantErr string // empty means pass
	}{
		{"required present", Required("a", "b"), obj(atom.O("a", atom.Int(1)), atom.O("b", atom.String(""))), ""},
		{"required missing", Required("a", "b", "c"), obj(atom.O("b", atom.Int(1))), "missing fields: a, c"},
		{"required null", Required("a"), obj(atom.O("a", atom.Null{})), "missing fields: a"},

		{"ticker ok", Ticker(), obj(atom.O("ticker", atom.String("AAPL"))), ""},
		{"ticker missing", Ticker(), obj(), "missing ticker field"},
		{"ticker number", Ticker(), obj(atom.O("ticker", atom.Int(7))), "ticker field is number, want string"},

		{"one_of match", OneOf("interval", []atom.Value{atom.String("1d"), atom.String("1h")}, true),
			obj(atom.O("interval", atom.String("1h"))), ""},
		{"one_of miss", OneOf("interval", []atom.Value{atom.String("1d")}, true),
			obj(atom.O("interval", atom.String("5m"))), `field "interval" value "5m" is not an allowed value`},
		{"one_of optional absent", OneOf("interval", []atom.Value{atom.String("1d")}, false), obj(), ""},
		{"one_of required absent", OneOf("interval", []atom.Value{atom.String("1d")}, true), obj(), `missing field "interval"`},
		{"one_of structural", OneOf("lot", []atom.Value{atom.Int(100)}, true), obj(atom.O("lot", atom.Float(100))), ""},

		{"time ok", TimeFormat("date", time.DateOnly, true), obj(atom.O("date", atom.String("2020-03-04"))), ""},
		{"time bad", TimeFormat("date", time.DateOnly, true), obj(atom.O("date", atom.String("04/03/2020"))), "does not match layout"},
		{"time not string", TimeFormat("date", time.DateOnly, true), obj(atom.O("date", atom.Int(20200304))), `field "date" is number, want string`},

		{"between inside", TimeBetween("date", time.DateOnly, start, end, true), obj(atom.O("date", atom.String("2020-06-01"))), ""},
		{"between on edge inclusive", TimeBetween("date", time.DateOnly, start, end, true), obj(atom.O("date", atom.String("2020-01-01"))), ""},
		{"between on edge exclusive", TimeBetween("date", time.DateOnly, start, end, false), obj(atom.O("date", atom.String("2020-01-01"))), "is before 2020-01-01"},
		{"between after", TimeBetween("date", time.DateOnly, start, end, true), obj(atom.O("date", atom.String("2021-01-01"))), "is after 2020-12-31"},
		{"between open end", TimeBetween("date", time.DateOnly, start, time.Time{}, true), obj(atom.O("date", atom.String("2099-01-01"))), ""},

		{"range ok", Range("close", 0, math.Inf(1), true), obj(atom.O("close", atom.Float(189.84))), ""},
		{"range int", Range("volume", 0, 1e12, true), obj(atom.O("volume", atom.Int(5))), ""},
		{"range below", Range("close", 0, math.Inf(1), true), obj(atom.O("close", atom.Float(-1))), "outside"},
		{"range not number", Range("close", 0, 1, true), obj(atom.O("close", atom.String("1"))), "want number"},

		{"pattern ok", upper, obj(atom.O("ticker", atom.String("BRK.B"))), ""},
		{"pattern miss", upper, obj(atom.O("ticker", atom.String("aapl"))), "does not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Evaluate(tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPattern_InvalidExpression(t *testing.T) {
	_, err := Pattern("ticker", `([`, true)
	assert.Error(t, err)
}

func TestBuiltinChecks_Names(t *testing.T) {
	assert.Equal(t, "required(a,b)", Required("a", "b").Name())
	assert.Equal(t, "ticker", Ticker().Name())
	assert.Equal(t, "range(close)", Range("close", 0, 1, false).Name())
}
