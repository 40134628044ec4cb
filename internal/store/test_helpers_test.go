package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testProgram is out(x) = in(x) + k over [0, n).
func testProgram(name string, n int64) *loopnest.Program {
	k := ir.Int(1)
	region := []ir.Range{{Min: 0, Extent: n}}
	return &loopnest.Program{
		Name: name,
		Args: []loopnest.Arg{
			{Name: "in", Kind: loopnest.ArgInput, Type: ir.Int32, Rank: 1, Region: region},
			{Name: "k", Kind: loopnest.ArgScalar, Type: ir.Int32, Default: &k},
			{Name: "out", Kind: loopnest.ArgOutput, Type: ir.Int32, Rank: 1, Region: region},
		},
		Realizations: []loopnest.Realization{{Func: "out", Type: ir.Int32, Region: region, Output: true}},
		Stages: []loopnest.Stage{{Func: "out", Body: []loopnest.Stmt{
			&loopnest.Loop{Var: "x", Extent: n, Body: []loopnest.Stmt{
				&loopnest.Store{
					Buffer: "out",
					Index:  []ir.Expr{ir.V("x")},
					Value: ir.Add(
						ir.BufferRead{Buffer: "in", Func: ir.NoFunc, Elem: ir.Int32, Args: []ir.Expr{ir.V("x")}},
						ir.ParamRef{Name: "k", Type: ir.Int32},
					),
				},
			}},
		}}},
	}
}

// createTestArtifact builds an artifact record for testProgram.
func createTestArtifact(t *testing.T, name string, n, seq int64) Artifact {
	t.Helper()
	a, err := NewArtifact(testProgram(name, n), "pipeline-"+name, seq)
	if err != nil {
		t.Fatalf("NewArtifact() failed: %v", err)
	}
	return a
}

func createTestRun(id, artifactID string, status RunStatus, seq int64) Run {
	r := Run{ID: id, ArtifactID: artifactID, Status: status, Seq: seq}
	if status == RunFailed {
		r.ErrorKind = string(ir.KindSignatureMismatch)
		r.Error = "output buffer has rank 1, got rank 2"
	}
	return r
}
