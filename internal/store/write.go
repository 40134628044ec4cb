package store

import (
	"context"
	"fmt"
)

// WriteArtifact inserts an artifact record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing an artifact whose
// content hash is already registered is a no-op and reports inserted=false.
func (s *Store) WriteArtifact(ctx context.Context, a Artifact) (inserted bool, err error) {
	sigJSON, err := marshalSignature(a.Signature)
	if err != nil {
		return false, fmt.Errorf("write artifact: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(id, pipeline_id, name, signature, loop_nest, program, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		a.ID,
		a.PipelineID,
		a.Name,
		sigJSON,
		a.LoopNest,
		a.Program,
		a.Seq,
	)
	if err != nil {
		return false, fmt.Errorf("write artifact: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write artifact: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteRun inserts a run record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
//
// Note: The artifact referenced by ArtifactID must exist (foreign key constraint).
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	if r.Status != RunOK && r.Status != RunFailed {
		return fmt.Errorf("write run: invalid status %q", r.Status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, artifact_id, status, error_kind, error, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.ArtifactID,
		string(r.Status),
		r.ErrorKind,
		r.Error,
		r.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	return nil
}
