package store

import (
	"context"
	"fmt"

	"github.com/roach88/conform/internal/engine"
)

// Run is one suite invocation.
type Run struct {
	ID     string
	Seq    int64
	Suite  string
	Status engine.TraceStatus
}

// NextSeq returns the sequence number for a new run: one past the highest
// stored seq, or 1 for an empty store.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM runs`).Scan(&last); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return last + 1, nil
}

// WriteRun inserts a run. An empty status is stored as running.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = engine.StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, suite, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Seq, run.Suite, string(run.Status))
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status engine.TraceStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, string(status), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: %w: %s", ErrNotFound, runID)
	}
	return nil
}

// WriteReport stores a test report and all of its trace results in one
// transaction. Writing the same test twice for a run is an error.
func (s *Store) WriteReport(ctx context.Context, runID string, report *engine.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (run_id, test, status, reason)
		VALUES (?, ?, ?, ?)
	`, runID, report.Test, string(report.Status), report.Reason)
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.Test, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_results
		(run_id, test, trace_index, name, fingerprint, status, steps, step_index,
		 action, participant, code, reason, expected, actual, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.Test, err)
	}
	defer stmt.Close()

	for _, r := range report.Traces {
		_, err := stmt.ExecContext(ctx,
			runID,
			report.Test,
			r.Index,
			r.Name,
			r.Fingerprint,
			string(r.Status),
			r.Steps,
			r.StepIndex,
			r.Action,
			r.Participant,
			string(r.Code),
			r.Reason,
			r.Expected,
			r.Actual,
			r.Duration.Microseconds(),
		)
		if err != nil {
			return fmt.Errorf("write report %s: trace %d: %w", report.Test, r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write report %s: %w", report.Test, err)
	}
	return nil
}
