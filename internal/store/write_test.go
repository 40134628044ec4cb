package store

import (
	"context"
	"testing"
)

func TestWriteArtifact_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestArtifact(t, "inc", 8, 1)

	inserted, err := s.WriteArtifact(ctx, a)
	if err != nil {
		t.Fatalf("WriteArtifact() failed: %v", err)
	}
	if !inserted {
		t.Error("first write should insert")
	}

	// same content at a later seq is the same artifact
	again := a
	again.Seq = 9
	inserted, err = s.WriteArtifact(ctx, again)
	if err != nil {
		t.Fatalf("second WriteArtifact() failed: %v", err)
	}
	if inserted {
		t.Error("second write of the same content should be a no-op")
	}

	got, err := s.ReadArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("ReadArtifact() failed: %v", err)
	}
	if got.Seq != 1 {
		t.Errorf("seq = %d, want the first write's 1", got.Seq)
	}
}

func TestWriteArtifact_ContentAddressed(t *testing.T) {
	a := createTestArtifact(t, "inc", 8, 1)
	b := createTestArtifact(t, "inc", 8, 2)
	c := createTestArtifact(t, "inc", 9, 3)

	if a.ID != b.ID {
		t.Errorf("equal programs have different IDs: %s vs %s", a.ID, b.ID)
	}
	if a.ID == c.ID {
		t.Error("different programs share an ID")
	}
}

func TestWriteRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestArtifact(t, "inc", 8, 1)
	if _, err := s.WriteArtifact(ctx, a); err != nil {
		t.Fatalf("WriteArtifact() failed: %v", err)
	}

	run := createTestRun("run-1", a.ID, RunOK, 2)
	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	// duplicate ID is ignored
	if err := s.WriteRun(ctx, createTestRun("run-1", a.ID, RunFailed, 3)); err != nil {
		t.Fatalf("duplicate WriteRun() failed: %v", err)
	}

	runs, err := s.ReadRuns(ctx, a.ID)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0] != run {
		t.Errorf("run = %+v, want %+v", runs[0], run)
	}
}

func TestWriteRun_UnknownArtifact(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteRun(context.Background(), createTestRun("run-1", "missing", RunOK, 1))
	if err == nil {
		t.Error("expected foreign key error for unknown artifact")
	}
}

func TestWriteRun_InvalidStatus(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteRun(context.Background(), Run{ID: "run-1", ArtifactID: "a", Status: "pending", Seq: 1})
	if err == nil {
		t.Error("expected error for invalid status")
	}
}
