package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestc/internal/ir"
)

func parseGraph(t *testing.T) *ir.Graph {
	t.Helper()
	g := ir.NewGraph("p")
	_, err := g.DeclareImage("img", ir.Float32, 2)
	require.NoError(t, err)
	_, err = g.DeclareParam("k", ir.Int32)
	require.NoError(t, err)
	_, err = g.Declare("f", "x")
	require.NoError(t, err)
	return g
}

func TestParseExpr(t *testing.T) {
	g := parseGraph(t)
	tests := []struct {
		src  string
		want string
	}{
		{"x + y * 2", "(x + (y * 2))"},
		{"(x + y) * 2", "((x + y) * 2)"},
		{"x - 1 - 2", "((x - 1) - 2)"},
		{"img(x, y) * 0.5", "(img(x, y) * 0.5)"},
		{"f(x + k)", "f((x + k))"},
		{"min(x, 3) + max(y, 0)", "(min(x, 3) + max(y, 0))"},
		{"x > 3", "(3 < x)"},
		{"x >= 3 && y != 0 || false", "(((3 <= x) && (y != 0)) || false)"},
		{"-x", "(0 - x)"},
		{"-2", "-2"},
		{"-2.5", "-2.5"},
		{"float32(x)", "float32(x)"},
		{"float64(1)", "float64(1.0)"},
		{"int64(3000000000)", "int64(3000000000)"},
		{"x % 4", "(x % 4)"},
		{"1e3", "1000.0"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src, g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParseExpr_Resolution(t *testing.T) {
	g := parseGraph(t)

	e, err := ParseExpr("k", g)
	require.NoError(t, err)
	assert.Equal(t, ir.ParamRef{Name: "k", Type: ir.Int32}, e)

	e, err = ParseExpr("img(x, y)", g)
	require.NoError(t, err)
	read, ok := e.(ir.BufferRead)
	require.True(t, ok)
	assert.Equal(t, ir.NoFunc, read.Func)
	assert.Equal(t, ir.Float32, read.Elem)

	e, err = ParseExpr("f(x)", g)
	require.NoError(t, err)
	read, ok = e.(ir.BufferRead)
	require.True(t, ok)
	id, _ := g.FuncByName("f")
	assert.Equal(t, id, read.Func)

	e, err = ParseExpr("z", g)
	require.NoError(t, err)
	assert.Equal(t, ir.V("z"), e)
}

func TestParseExpr_Errors(t *testing.T) {
	g := parseGraph(t)
	tests := []struct {
		src string
		pos int
	}{
		{"x +", 3},
		{"(x + 1", 6},
		{"x $ 1", 2},
		{"unknown(x)", 0},
		{"min(x)", 0},
		{"x y", 2},
		{"3000000000", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseExpr(tt.src, g)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.pos, pe.Pos)
		})
	}
}
