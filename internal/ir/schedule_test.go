package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduled(t *testing.T) (*Graph, FuncID) {
	t.Helper()
	g := NewGraph("p")
	f, err := g.Declare("f", "x", "y")
	require.NoError(t, err)
	require.NoError(t, g.Define(f, Add(V("x"), V("y"))))
	return g, f
}

func TestSchedule_SplitReplacesVariable(t *testing.T) {
	g, f := scheduled(t)
	require.NoError(t, g.Attach(f, Split{Var: "y", Outer: "yo", Inner: "yi", Factor: 2}))
	assert.Equal(t, []string{"x", "yi", "yo"}, g.Func(f).Schedule.Vars())

	err := g.Attach(f, Parallelize{Var: "y"})
	assert.True(t, IsKind(err, KindUnknownScheduleVariable), "y no longer names a loop")
	require.NoError(t, g.Attach(f, Parallelize{Var: "yo"}))
	assert.True(t, g.Func(f).Schedule.Strategy("yo").Parallel)
}

func TestSchedule_Tile(t *testing.T) {
	g, f := scheduled(t)
	require.NoError(t, g.Attach(f, Tile{
		X: "x", Y: "y", XOuter: "xo", YOuter: "yo", XInner: "xi", YInner: "yi", XFactor: 4, YFactor: 2,
	}))
	assert.Equal(t, []string{"xi", "yi", "xo", "yo"}, g.Func(f).Schedule.Vars())
}

func TestSchedule_Reorder(t *testing.T) {
	g, f := scheduled(t)

	err := g.Attach(f, Reorder{Vars: []string{"y"}})
	assert.True(t, IsKind(err, KindReorderMismatch), "missing variable")

	err = g.Attach(f, Reorder{Vars: []string{"y", "z"}})
	assert.True(t, IsKind(err, KindReorderMismatch), "unknown variable")

	err = g.Attach(f, Reorder{Vars: []string{"y", "y"}})
	assert.True(t, IsKind(err, KindReorderMismatch), "duplicate variable")

	require.NoError(t, g.Attach(f, Reorder{Vars: []string{"y", "x"}}))
	assert.Equal(t, []string{"y", "x"}, g.Func(f).Schedule.Vars())
}

func TestSchedule_ConflictingStrategies(t *testing.T) {
	g, f := scheduled(t)
	require.NoError(t, g.Attach(f, Vectorize{Var: "x", Width: 4}))

	err := g.Attach(f, Unroll{Var: "x", Factor: 2})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflictingStrategy))
	assert.Equal(t, CategorySchedule, KindOf(err).Category())

	err = g.Attach(f, Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 2})
	assert.True(t, IsKind(err, KindConflictingStrategy), "split after vectorize")
}

func TestSchedule_FailedAttachLeavesScheduleUnchanged(t *testing.T) {
	g, f := scheduled(t)
	require.NoError(t, g.Attach(f, Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 4}))

	err := g.Attach(f, Tile{
		X: "xo", Y: "q", XOuter: "a", YOuter: "b", XInner: "c", YInner: "d", XFactor: 2, YFactor: 2,
	})
	assert.True(t, IsKind(err, KindUnknownScheduleVariable))

	s := g.Func(f).Schedule
	assert.Equal(t, []string{"xi", "xo", "y"}, s.Vars())
	assert.Len(t, s.Directives(), 1)
}

func TestSchedule_MalformedDirectives(t *testing.T) {
	tests := []struct {
		name string
		d    Directive
	}{
		{"zero split factor", Split{Var: "x", Outer: "xo", Inner: "xi", Factor: 0}},
		{"same split names", Split{Var: "x", Outer: "a", Inner: "a", Factor: 2}},
		{"split onto existing loop", Split{Var: "x", Outer: "y", Inner: "xi", Factor: 2}},
		{"negative width", Vectorize{Var: "x", Width: -1}},
		{"tile one variable", Tile{X: "x", Y: "x", XOuter: "a", YOuter: "b", XInner: "c", YInner: "d", XFactor: 2, YFactor: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, f := scheduled(t)
			err := g.Attach(f, tt.d)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindUnsupportedConstruct), "got %v", err)
		})
	}
}

func TestSchedule_ComputeRoot(t *testing.T) {
	g, f := scheduled(t)
	require.NoError(t, g.Attach(f, ComputeRoot{}))
	s := g.Func(f).Schedule
	assert.True(t, s.IsComputeRoot())
	assert.False(t, s.HasLoopDirectives())

	require.NoError(t, g.Attach(f, Parallelize{Var: "y"}))
	assert.True(t, s.HasLoopDirectives())
}

func TestDirectiveStrings(t *testing.T) {
	assert.Equal(t, "split(y, yo, yi, 2)", Split{Var: "y", Outer: "yo", Inner: "yi", Factor: 2}.String())
	assert.Equal(t, "reorder(y, x)", Reorder{Vars: []string{"y", "x"}}.String())
	assert.Equal(t, "vectorize(x, 8)", Vectorize{Var: "x", Width: 8}.String())
	assert.Equal(t, "parallel(y)", Parallelize{Var: "y"}.String())
	assert.Equal(t, "unroll(x, 2)", Unroll{Var: "x", Factor: 2}.String())
}
