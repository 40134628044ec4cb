package store

import (
	"fmt"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

// Artifact is a compiled pipeline as recorded in the registry.
type Artifact struct {
	ID         string // ir.ArtifactID of Program
	PipelineID string // ir.PipelineID of the source graph
	Name       string
	Signature  []SignatureArg
	LoopNest   string // printed loop nest
	Program    []byte // loopnest.Encode output
	Seq        int64
}

// SignatureArg is one entry of an artifact's call signature.
type SignatureArg struct {
	Name    string     `json:"name"`
	Kind    string     `json:"kind"`
	Type    string     `json:"type"`
	Rank    int        `json:"rank"`
	Region  [][2]int64 `json:"region"`
	Default string     `json:"default,omitempty"`
}

// RunStatus is the outcome of one invocation.
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// Run is one recorded invocation of an artifact.
type Run struct {
	ID         string // UUIDv7 from the artifact's run ID generator
	ArtifactID string
	Status     RunStatus
	ErrorKind  string // ir.ErrorKind of a failed run, empty otherwise
	Error      string
	Seq        int64
}

// NewArtifact encodes p into a registry record.
func NewArtifact(p *loopnest.Program, pipelineID string, seq int64) (Artifact, error) {
	encoded, err := loopnest.Encode(p)
	if err != nil {
		return Artifact{}, fmt.Errorf("new artifact: %w", err)
	}
	sig := make([]SignatureArg, len(p.Args))
	for i, a := range p.Args {
		sa := SignatureArg{Name: a.Name, Kind: a.Kind.String(), Type: a.Type.String(), Rank: a.Rank, Region: [][2]int64{}}
		for _, r := range a.Region {
			sa.Region = append(sa.Region, [2]int64{r.Min, r.Extent})
		}
		if a.Default != nil {
			sa.Default = a.Default.String()
		}
		sig[i] = sa
	}
	return Artifact{
		ID:         ir.ArtifactID(encoded),
		PipelineID: pipelineID,
		Name:       p.Name,
		Signature:  sig,
		LoopNest:   p.String(),
		Program:    encoded,
		Seq:        seq,
	}, nil
}

// Decode returns the loop-nest program of the artifact.
func (a Artifact) Decode() (*loopnest.Program, error) {
	p, err := loopnest.Decode(a.Program)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", a.ID, err)
	}
	return p, nil
}
