package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b ScalarType
		want ScalarType
		ok   bool
	}{
		{Int32, Int32, Int32, true},
		{Int32, Int64, Int64, true},
		{Int64, Float32, Float32, true},
		{Float32, Float64, Float64, true},
		{Int32, Float64, Float64, true},
		{Bool, Bool, Bool, true},
		{Bool, Int32, Invalid, false},
		{Float32, Bool, Invalid, false},
		{Invalid, Invalid, Invalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			got, ok := Promote(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScalarType(t *testing.T) {
	for _, name := range []string{"bool", "int32", "int64", "float32", "float64"} {
		typ, err := ParseScalarType(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.String())
	}
	_, err := ParseScalarType("invalid")
	assert.Error(t, err)
	_, err = ParseScalarType("uint8")
	assert.Error(t, err)
}

func TestApplyInt(t *testing.T) {
	assert.Equal(t, int64(math.MinInt32), ApplyInt(OpAdd, Int32, math.MaxInt32, 1), "int32 wraps")
	assert.Equal(t, int64(math.MaxInt32)+1, ApplyInt(OpAdd, Int64, math.MaxInt32, 1))
	assert.Equal(t, int64(0), ApplyInt(OpDiv, Int32, 7, 0))
	assert.Equal(t, int64(0), ApplyInt(OpMod, Int32, 7, 0))
	assert.Equal(t, int64(-3), ApplyInt(OpDiv, Int32, -7, 2), "division truncates toward zero")
	assert.Equal(t, int64(1), ApplyInt(OpLT, Bool, 1, 2))
	assert.Equal(t, int64(0), ApplyInt(OpAnd, Bool, 1, 0))
	assert.Equal(t, int64(2), ApplyInt(OpMin, Int32, 2, 5))
}

func TestApplyFloat(t *testing.T) {
	// variables keep the sums out of exact constant arithmetic
	a, b := 0.1, 0.2
	got := ApplyFloat(OpAdd, Float32, a, b)
	assert.Equal(t, float64(float32(a+b)), got, "float32 results are rounded")
	assert.Equal(t, a+b, ApplyFloat(OpAdd, Float64, a, b))
	assert.NotEqual(t, 0.3, ApplyFloat(OpAdd, Float64, a, b))
	assert.Equal(t, 1.0, ApplyFloat(OpMod, Float64, 7, 3))
	assert.Equal(t, int64(1), CompareFloat(OpLE, 2, 2))
}

func TestFloatToInt(t *testing.T) {
	assert.Equal(t, int64(0), FloatToInt(Int32, math.NaN()))
	assert.Equal(t, int64(-2), FloatToInt(Int32, -2.7))
	assert.Equal(t, int64(math.MaxInt64), FloatToInt(Int64, math.Inf(1)))
	assert.Equal(t, int64(1), FloatToInt(Bool, 0.5))
}

func TestExprString(t *testing.T) {
	e := Add(Mul(V("x"), Float(2)), Min(V("y"), Int(3)))
	assert.Equal(t, "((x * 2.0) + min(y, 3))", e.String())
	assert.Equal(t, "float64(1.5)", Float64Const(1.5).String())
	assert.Equal(t, "int64(7)", Int64Const(7).String())
	assert.Equal(t, "int32(x)", Convert(Int32, V("x")).String())
	assert.Equal(t, "true", BoolConst(true).String())
}

func TestFreeVariablesAndSubstitute(t *testing.T) {
	e := Add(V("y"), Mul(V("x"), V("y")))
	assert.Equal(t, []string{"x", "y"}, FreeVariables(e))

	sub := Substitute(e, map[string]Expr{"x": V("y"), "y": Int(1)})
	assert.Equal(t, "(1 + (y * 1))", sub.String(), "substitution is simultaneous")
}
