package store

import (
	"context"
	"fmt"
)

// History is an artifact together with every run made with it.
type History struct {
	Artifact Artifact
	Runs     []Run
	LastSeq  int64 // largest seq of the artifact or any of its runs
	Failed   int
}

// ReadHistory returns the history of every registered artifact, ordered by
// artifact seq.
func (s *Store) ReadHistory(ctx context.Context) ([]History, error) {
	artifacts, err := s.ReadAllArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	runs, err := s.ReadRuns(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	byArtifact := make(map[string][]Run, len(artifacts))
	for _, r := range runs {
		byArtifact[r.ArtifactID] = append(byArtifact[r.ArtifactID], r)
	}

	out := make([]History, 0, len(artifacts))
	for _, a := range artifacts {
		h := History{Artifact: a, Runs: byArtifact[a.ID], LastSeq: a.Seq}
		if h.Runs == nil {
			h.Runs = []Run{}
		}
		for _, r := range h.Runs {
			h.LastSeq = max(h.LastSeq, r.Seq)
			if r.Status == RunFailed {
				h.Failed++
			}
		}
		out = append(out, h)
	}
	return out, nil
}
