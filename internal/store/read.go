package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const artifactColumns = `id, pipeline_id, name, signature, loop_nest, program, seq`

// ReadArtifact retrieves a single artifact by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadArtifact(ctx context.Context, id string) (Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts
		WHERE id = ?
	`, id)

	return scanArtifact(row)
}

// FindArtifact returns the first artifact registered for a pipeline ID.
// ok is false when the pipeline has never been compiled into this registry.
func (s *Store) FindArtifact(ctx context.Context, pipelineID string) (a Artifact, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts
		WHERE pipeline_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, pipelineID)

	a, err = scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}

// ReadAllArtifacts returns all artifacts with deterministic ordering
// (seq ASC, id ASC).
func (s *Store) ReadAllArtifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// ReadRuns returns the runs of one artifact, or of every artifact when
// artifactID is empty, ordered by seq ASC, id ASC.
func (s *Store) ReadRuns(ctx context.Context, artifactID string) ([]Run, error) {
	query := `
		SELECT id, artifact_id, status, error_kind, error, seq
		FROM runs
	`
	var args []any
	if artifactID != "" {
		query += ` WHERE artifact_id = ?`
		args = append(args, artifactID)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var status string
		if err := rows.Scan(&r.ID, &r.ArtifactID, &status, &r.ErrorKind, &r.Error, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = RunStatus(status)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// NextSeq returns one past the largest sequence number recorded in either
// table, or 1 for an empty registry. Callers use it to continue the logical
// clock across processes.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM artifacts
			UNION ALL
			SELECT seq FROM runs
		)
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return last + 1, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (Artifact, error) {
	var a Artifact
	var sigJSON string
	err := row.Scan(&a.ID, &a.PipelineID, &a.Name, &sigJSON, &a.LoopNest, &a.Program, &a.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, err
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("scan artifact: %w", err)
	}
	if a.Signature, err = unmarshalSignature(sigJSON); err != nil {
		return Artifact{}, err
	}
	return a, nil
}
