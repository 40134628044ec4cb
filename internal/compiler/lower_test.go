package compiler

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// scaleGraph builds output(x, y) = input(x, y) * scale over a 10x5 region.
func scaleGraph(t *testing.T, directives ...ir.Directive) (*ir.Graph, ir.FuncID) {
	t.Helper()
	g := ir.NewGraph("scale")
	in, err := g.DeclareImage("input", ir.Float32, 2)
	require.NoError(t, err)
	scale, err := g.DeclareParamDefault("scale", ir.Float(2))
	require.NoError(t, err)
	out, err := g.Declare("output", "x", "y")
	require.NoError(t, err)
	require.NoError(t, g.Define(out, ir.Mul(in.Read(ir.V("x"), ir.V("y")), scale)))
	for _, d := range directives {
		require.NoError(t, g.Attach(out, d))
	}
	require.NoError(t, g.SetOutput(out, ir.Range{Min: 0, Extent: 10}, ir.Range{Min: 0, Extent: 5}))
	return g, out
}

// blurGraph builds a three-stage 1-D pipeline: shifted is inlined, blurx is
// compute_root and out is split.
func blurGraph(t *testing.T, outDirectives ...ir.Directive) *ir.Graph {
	t.Helper()
	g := ir.NewGraph("blur")
	src, err := g.DeclareImage("src", ir.Int32, 1)
	require.NoError(t, err)
	f := declare(t, g, "shifted", "blurx", "out")
	x := ir.V("x")
	require.NoError(t, g.Define(f["shifted"], ir.Mul(src.Read(x), ir.Int(2))))
	require.NoError(t, g.Define(f["blurx"], ir.Add(
		g.Call(f["shifted"], ir.Sub(x, ir.Int(1))),
		g.Call(f["shifted"], ir.Add(x, ir.Int(1))),
	)))
	require.NoError(t, g.Define(f["out"], ir.Add(
		g.Call(f["blurx"], x),
		g.Call(f["blurx"], ir.Add(x, ir.Int(2))),
	)))
	require.NoError(t, g.Attach(f["blurx"], ir.ComputeRoot{}))
	for _, d := range outDirectives {
		require.NoError(t, g.Attach(f["out"], d))
	}
	require.NoError(t, g.SetOutput(f["out"], ir.Range{Min: 0, Extent: 6}))
	return g
}

func TestLower_Golden(t *testing.T) {
	gold := newGolden(t)

	t.Run("scale", func(t *testing.T) {
		g, _ := scaleGraph(t,
			ir.Split{Var: "y", Outer: "yo", Inner: "yi", Factor: 2},
			ir.Vectorize{Var: "x", Width: 4},
			ir.Parallelize{Var: "yo"},
		)
		p, err := Lower(g)
		require.NoError(t, err)
		gold.Assert(t, "scale", []byte(p.String()))
	})

	t.Run("blur", func(t *testing.T) {
		g := blurGraph(t, ir.Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 4})
		p, err := Lower(g)
		require.NoError(t, err)
		gold.Assert(t, "blur", []byte(p.String()))
	})
}

func TestLower_GuardWhenClampCannotBeHoisted(t *testing.T) {
	g := blurGraph(t,
		ir.Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 4},
		ir.Reorder{Vars: []string{"xo", "xi"}},
	)
	p, err := Lower(g)
	require.NoError(t, err)

	text := p.String()
	assert.Contains(t, text, "  for xi in [0, 4):\n")
	assert.Contains(t, text, "    for xo in [0, 2):\n      let x = ((xo * 4) + xi)\n")
	assert.Contains(t, text, "if (xi < (6 - (xo * 4))): out(x) = ")
}

func TestLower_Tile(t *testing.T) {
	g, _ := scaleGraph(t, ir.Tile{
		X: "x", Y: "y",
		XOuter: "xo", YOuter: "yo", XInner: "xi", YInner: "yi",
		XFactor: 4, YFactor: 4,
	})
	p, err := Lower(g)
	require.NoError(t, err)

	var order []string
	loopnest.Walk(p.Stages[0].Body, func(s loopnest.Stmt) {
		if l, ok := s.(*loopnest.Loop); ok {
			order = append(order, l.Var)
		}
	})
	assert.Equal(t, []string{"yo", "xo", "yi", "xi"}, order)

	text := p.String()
	assert.Contains(t, text, "for xo in [0, 3):")
	assert.Contains(t, text, "for xi in [0, 4) clamp (10 - (xo * 4)):")
	assert.Contains(t, text, "for yi in [0, 4) clamp (5 - (yo * 4)):")
	assert.Contains(t, text, "let x = ((xo * 4) + xi)")
	assert.Contains(t, text, "let y = ((yo * 4) + yi)")
}

func TestLower_NestedSplitCapsRemainder(t *testing.T) {
	g, _ := scaleGraph(t,
		ir.Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 4},
		ir.Split{Var: "xi", Outer: "xio", Inner: "xii", Factor: 3},
	)
	p, err := Lower(g)
	require.NoError(t, err)

	text := p.String()
	assert.Contains(t, text, "for xo in [0, 3):")
	assert.Contains(t, text, "for xio in [0, 2) clamp ((min((10 - (xo * 4)), 4) + 2) / 3):")
	assert.Contains(t, text, "for xii in [0, 3) clamp (min((10 - (xo * 4)), 4) - (xio * 3)):")
}

func TestLower_SplitFactorCoversExtent(t *testing.T) {
	g, _ := scaleGraph(t, ir.Split{Var: "y", Outer: "yo", Inner: "yi", Factor: 8})
	p, err := Lower(g)
	require.NoError(t, err)

	text := p.String()
	assert.Contains(t, text, "for yo in [0, 1):")
	assert.Contains(t, text, "for yi in [0, 5):")
	assert.NotContains(t, text, "clamp")
}

func TestLower_NonZeroMin(t *testing.T) {
	g := ir.NewGraph("shift")
	in, err := g.DeclareImage("in", ir.Int32, 1)
	require.NoError(t, err)
	out, err := g.Declare("out", "x")
	require.NoError(t, err)
	require.NoError(t, g.Define(out, in.Read(ir.V("x"))))
	require.NoError(t, g.Attach(out, ir.Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 4}))
	require.NoError(t, g.SetOutput(out, ir.Range{Min: 3, Extent: 8}))

	p, err := Lower(g)
	require.NoError(t, err)
	assert.Contains(t, p.String(), "let x = (3 + ((xo * 4) + xi))")
	assert.Equal(t, []ir.Range{{Min: 3, Extent: 8}}, p.Args[0].Region)
}

func TestLower_Errors(t *testing.T) {
	t.Run("loop directive on inlined function", func(t *testing.T) {
		g := ir.NewGraph("p")
		in, err := g.DeclareImage("in", ir.Int32, 1)
		require.NoError(t, err)
		f := declare(t, g, "a", "out")
		require.NoError(t, g.Define(f["a"], in.Read(ir.V("x"))))
		require.NoError(t, g.Define(f["out"], g.Call(f["a"], ir.V("x"))))
		require.NoError(t, g.Attach(f["a"], ir.Vectorize{Var: "x", Width: 4}))
		require.NoError(t, g.SetOutput(f["out"], ir.Range{Min: 0, Extent: 8}))

		_, err = Lower(g)
		var e *ir.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, ir.KindUnsupportedConstruct, e.Kind)
		assert.Equal(t, "a", e.Func)
		assert.Equal(t, "vectorize(x, 4)", e.Directive)
	})

	t.Run("non-affine index", func(t *testing.T) {
		g := ir.NewGraph("p")
		in, err := g.DeclareImage("in", ir.Int32, 1)
		require.NoError(t, err)
		out, err := g.Declare("out", "x")
		require.NoError(t, err)
		x := ir.V("x")
		require.NoError(t, g.Define(out, in.Read(ir.Mul(x, x))))
		require.NoError(t, g.SetOutput(out, ir.Range{Min: 0, Extent: 8}))

		_, err = Lower(g)
		assert.True(t, ir.IsKind(err, ir.KindUnboundedDomain))
	})

	t.Run("output read outside its region", func(t *testing.T) {
		g := ir.NewGraph("p")
		in, err := g.DeclareImage("in", ir.Int32, 1)
		require.NoError(t, err)
		f := declare(t, g, "a", "b")
		x := ir.V("x")
		require.NoError(t, g.Define(f["a"], in.Read(x)))
		require.NoError(t, g.Define(f["b"], g.Call(f["a"], ir.Add(x, ir.Int(1)))))
		require.NoError(t, g.SetOutput(f["a"], ir.Range{Min: 0, Extent: 4}))
		require.NoError(t, g.SetOutput(f["b"], ir.Range{Min: 0, Extent: 4}))

		_, err = Lower(g)
		var e *ir.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, ir.KindUnboundedDomain, e.Kind)
		assert.Equal(t, "a", e.Func)
	})

	t.Run("parallel vectorized innermost loop", func(t *testing.T) {
		g, _ := scaleGraph(t, ir.Vectorize{Var: "x", Width: 4}, ir.Parallelize{Var: "x"})
		_, err := Lower(g)
		var e *ir.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, ir.KindInvalidParallelInner, e.Kind)
		assert.Equal(t, "x", e.Var)
	})
}
