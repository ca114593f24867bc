package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/conform/internal/engine"
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

// createTestRun writes a run with the given id and seq.
func createTestRun(t *testing.T, s *Store, id string, seq int64) Run {
	t.Helper()
	run := Run{ID: id, Seq: seq, Suite: "ballot"}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	run.Status = engine.StatusRunning
	return run
}

// passedTrace returns a passing trace result.
func passedTrace(index int, fingerprint string) engine.TraceResult {
	return engine.TraceResult{
		Index:       index,
		Name:        "decides.itf.json",
		Fingerprint: fingerprint,
		Status:      engine.StatusPassed,
		Steps:       10,
		StepIndex:   -1,
		Duration:    1500 * time.Microsecond,
	}
}

// failedTrace returns a trace result that failed at step.
func failedTrace(index int, fingerprint string, step int) engine.TraceResult {
	return engine.TraceResult{
		Index:       index,
		Name:        "late_quorum.itf.json",
		Fingerprint: fingerprint,
		Status:      engine.StatusFailed,
		Steps:       step,
		StepIndex:   step,
		Action:      "ReceiveVote",
		Participant: "p1",
		Code:        engine.ErrCodeStateMismatch,
		Reason:      "state mismatch",
		Expected:    `{"stage":"voted"}`,
		Actual:      `{"stage":"decided"}`,
	}
}
