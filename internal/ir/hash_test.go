package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaleGraph builds output(x, y) = input(x, y) * scale over [0,10) x [0,5)
// with vectorize(x, 8) and parallel(y).
func scaleGraph(t *testing.T) (*Graph, FuncID) {
	t.Helper()
	g := NewGraph("example")
	in, err := g.DeclareImage("input", Float32, 2)
	require.NoError(t, err)
	scale, err := g.DeclareParam("scale", Float32)
	require.NoError(t, err)
	out, err := g.Declare("output", "x", "y")
	require.NoError(t, err)
	require.NoError(t, g.Define(out, Mul(in.Read(V("x"), V("y")), scale)))
	require.NoError(t, g.Attach(out, Vectorize{Var: "x", Width: 8}))
	require.NoError(t, g.Attach(out, Parallelize{Var: "y"}))
	require.NoError(t, g.SetOutput(out, Range{0, 10}, Range{0, 5}))
	return g, out
}

func TestPipelineIDDeterminism(t *testing.T) {
	g1, _ := scaleGraph(t)
	g2, _ := scaleGraph(t)

	id1, err := PipelineID(g1)
	require.NoError(t, err)
	id2, err := PipelineID(g2)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestPipelineIDChangesWithSchedule(t *testing.T) {
	g1, _ := scaleGraph(t)
	g2, out := scaleGraph(t)
	require.NoError(t, g2.Attach(out, Unroll{Var: "y", Factor: 2}))

	id1, err := PipelineID(g1)
	require.NoError(t, err)
	id2, err := PipelineID(g2)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same bytes")
	assert.NotEqual(t, hashWithDomain(DomainPipeline, data), hashWithDomain(DomainArtifact, data))
	assert.Equal(t, hashWithDomain(DomainArtifact, data), ArtifactID(data))
}
