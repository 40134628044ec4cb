package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestc/internal/ir"
)

func loadTestGenerators(t *testing.T) []*Generator {
	t.Helper()
	gens, err := LoadGenerators("testdata/pipelines.cue")
	require.NoError(t, err)
	return gens
}

func TestLoadGenerators(t *testing.T) {
	gens := loadTestGenerators(t)
	require.Len(t, gens, 2)
	assert.Equal(t, "scale", gens[0].Name)
	assert.Equal(t, "blur", gens[1].Name)

	scale := gens[0]
	assert.Equal(t, []string{"vectorize", "parallel"}, scale.ParamNames())
	assert.Equal(t, 128, scale.VectorBits)
	assert.Equal(t, 0, gens[1].VectorBits)
}

func TestLoadGenerators_MissingFile(t *testing.T) {
	_, err := LoadGenerators("testdata/does-not-exist.cue")
	require.Error(t, err)
}

func TestFindGenerator(t *testing.T) {
	gens := loadTestGenerators(t)

	g, err := FindGenerator(gens, "blur")
	require.NoError(t, err)
	assert.Equal(t, "blur", g.Name)

	_, err = FindGenerator(gens, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scale, blur")

	_, err = FindGenerator(gens, "sharpen")
	require.Error(t, err)

	g, err = FindGenerator(gens[1:], "")
	require.NoError(t, err)
	assert.Equal(t, "blur", g.Name)
}

func TestGeneratorBuild_MatchesHandBuiltGraphs(t *testing.T) {
	gens := loadTestGenerators(t)
	gold := newGolden(t)

	for _, gen := range gens {
		t.Run(gen.Name, func(t *testing.T) {
			g, err := gen.Build(BuildOptions{})
			require.NoError(t, err)
			p, err := Lower(g)
			require.NoError(t, err)
			gold.Assert(t, gen.Name, []byte(p.String()))
		})
	}
}

func TestGeneratorBuild_Options(t *testing.T) {
	gen, err := FindGenerator(loadTestGenerators(t), "scale")
	require.NoError(t, err)

	t.Run("generator param off drops the entry", func(t *testing.T) {
		g, err := gen.Build(BuildOptions{Set: map[string]bool{"vectorize": false}})
		require.NoError(t, err)
		p, err := Lower(g)
		require.NoError(t, err)
		assert.NotContains(t, p.String(), "vectorized")
		assert.Contains(t, p.String(), "parallel for yo")
	})

	t.Run("vector bits override", func(t *testing.T) {
		g, err := gen.Build(BuildOptions{VectorBits: 512})
		require.NoError(t, err)
		id, _ := g.FuncByName("output")
		assert.Equal(t, ir.Strategy{Mode: ir.Vectorized, Factor: 16}, g.Func(id).Schedule.Strategy("x"))
	})

	t.Run("unknown generator param", func(t *testing.T) {
		_, err := gen.Build(BuildOptions{Set: map[string]bool{"fast": true}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fast")
	})

	t.Run("scalar default", func(t *testing.T) {
		g, err := gen.Build(BuildOptions{})
		require.NoError(t, err)
		p, ok := g.Param("scale")
		require.True(t, ok)
		require.NotNil(t, p.Default)
		assert.Equal(t, ir.Float(2), *p.Default)
	})
}

func TestGeneratorBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		field  string
		irKind ir.ErrorKind
	}{
		{
			name: "bad expression",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x +"}
	outputs: f: [{min: 0, extent: 4}]
}`,
			field: "funcs.f.expr",
		},
		{
			name: "entry without directive",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x", schedule: [{factor: 2}]}
	outputs: f: [{min: 0, extent: 4}]
}`,
			field: "funcs.f.schedule[0]",
		},
		{
			name: "two directives in one entry",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x", schedule: [{parallel: "x", vectorize: "x", width: 4}]}
	outputs: f: [{min: 0, extent: 4}]
}`,
			field: "funcs.f.schedule[0]",
		},
		{
			name: "unknown when param",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x", schedule: [{parallel: "x", when: "fast"}]}
	outputs: f: [{min: 0, extent: 4}]
}`,
			field: "funcs.f.schedule[0].when",
		},
		{
			name: "missing outputs",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x"}
}`,
			field: "outputs",
		},
		{
			name: "bad input kind",
			src: `pipeline: p: {
	inputs: a: {kind: "buffer", type: "int32"}
	funcs: f: {vars: ["x"], expr: "x"}
	outputs: f: [{min: 0, extent: 4}]
}`,
			field: "inputs.a.kind",
		},
		{
			name: "unknown schedule variable",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x", schedule: [{parallel: "y"}]}
	outputs: f: [{min: 0, extent: 4}]
}`,
			irKind: ir.KindUnknownScheduleVariable,
		},
		{
			name: "undeclared domain variable",
			src: `pipeline: p: {
	funcs: f: {vars: ["x"], expr: "x + y"}
	outputs: f: [{min: 0, extent: 4}]
}`,
			irKind: ir.KindUndeclaredDomain,
		},
		{
			name: "redefinition",
			src: `pipeline: p: {
	inputs: f: {kind: "param", type: "int32"}
	funcs: f: {vars: ["x"], expr: "x"}
	outputs: f: [{min: 0, extent: 4}]
}`,
			irKind: ir.KindRedefinition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gens, err := LoadGeneratorsString(tt.src, "test.cue")
			require.NoError(t, err)
			require.Len(t, gens, 1)
			_, err = gens[0].Build(BuildOptions{})
			require.Error(t, err)

			if tt.irKind != "" {
				assert.Equal(t, tt.irKind, ir.KindOf(err))
				return
			}
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoadGeneratorsString_Errors(t *testing.T) {
	_, err := LoadGeneratorsString("pipeline: {", "broken.cue")
	require.Error(t, err)

	_, err = LoadGeneratorsString("other: 1", "empty.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pipeline", ce.Field)
}
