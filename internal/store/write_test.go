package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/conform/internal/engine"
)

func TestNextSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("NextSeq() on empty store = %d, want 1", seq)
	}

	createTestRun(t, s, "run-a", 1)
	createTestRun(t, s, "run-b", 7)

	seq, err = s.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	if seq != 8 {
		t.Errorf("NextSeq() = %d, want 8", seq)
	}
}

func TestWriteRun_DuplicateSeq(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-a", 1)

	err := s.WriteRun(context.Background(), Run{ID: "run-b", Seq: 1, Suite: "ballot"})
	if err == nil {
		t.Fatal("WriteRun() with a duplicate seq should fail")
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a", 1)

	if err := s.FinishRun(ctx, "run-a", engine.StatusFailed); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	run, _, err := s.ReadRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != engine.StatusFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}

	if err := s.FinishRun(ctx, "nope", engine.StatusPassed); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun() on unknown run = %v, want ErrNotFound", err)
	}
}

func TestWriteReport_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	report := &engine.Report{Test: "ballot", Status: engine.StatusPassed, Traces: []engine.TraceResult{passedTrace(0, "fp")}}

	if err := s.WriteReport(context.Background(), "missing-run", report); err == nil {
		t.Fatal("WriteReport() for an unknown run should fail the foreign key")
	}
}

func TestWriteReport_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a", 1)

	// The duplicate trace index fails the second insert; nothing is kept.
	report := &engine.Report{
		Test:   "ballot",
		Status: engine.StatusPassed,
		Traces: []engine.TraceResult{passedTrace(0, "fp-1"), passedTrace(0, "fp-2")},
	}
	if err := s.WriteReport(ctx, "run-a", report); err == nil {
		t.Fatal("WriteReport() with a duplicate trace index should fail")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM reports").Scan(&count); err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if count != 0 {
		t.Errorf("reports = %d after rollback, want 0", count)
	}
}

func TestWriteReport_DuplicateTest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a", 1)

	report := &engine.Report{Test: "ballot", Status: engine.StatusPassed}
	if err := s.WriteReport(ctx, "run-a", report); err != nil {
		t.Fatalf("first WriteReport() failed: %v", err)
	}
	if err := s.WriteReport(ctx, "run-a", report); err == nil {
		t.Error("second WriteReport() for the same test should fail")
	}
}
