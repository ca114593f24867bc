package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/conform/internal/engine"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, seq, suite, status FROM runs ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r      Run
			status string
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Suite, &status); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.Status = engine.TraceStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ReadRun returns a run and its reports, ordered by test name, with trace
// results ordered by index. FirstFailure is derived as the executor does.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, []*engine.Report, error) {
	var (
		run    Run
		status string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, seq, suite, status FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Seq, &run.Suite, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("read run %s: %w", id, err)
	}
	run.Status = engine.TraceStatus(status)

	reports, err := s.readReports(ctx, id)
	if err != nil {
		return Run{}, nil, err
	}
	return run, reports, nil
}

func (s *Store) readReports(ctx context.Context, runID string) ([]*engine.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test, status, reason FROM reports
		WHERE run_id = ?
		ORDER BY test ASC COLLATE BINARY
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}

	var reports []*engine.Report
	byTest := make(map[string]*engine.Report)
	for rows.Next() {
		var (
			rep    engine.Report
			status string
		)
		if err := rows.Scan(&rep.Test, &status, &rep.Reason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("read reports: %w", err)
		}
		rep.Status = engine.TraceStatus(status)
		rep.Traces = []engine.TraceResult{}
		reports = append(reports, &rep)
		byTest[rep.Test] = &rep
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}

	results, err := s.db.QueryContext(ctx, `
		SELECT test, trace_index, name, fingerprint, status, steps, step_index,
		       action, participant, code, reason, expected, actual, duration_us
		FROM trace_results
		WHERE run_id = ?
		ORDER BY test ASC COLLATE BINARY, trace_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read trace results: %w", err)
	}
	defer results.Close()

	for results.Next() {
		var (
			test           string
			r              engine.TraceResult
			status, code   string
			durationMicros int64
		)
		err := results.Scan(&test, &r.Index, &r.Name, &r.Fingerprint, &status, &r.Steps, &r.StepIndex,
			&r.Action, &r.Participant, &code, &r.Reason, &r.Expected, &r.Actual, &durationMicros)
		if err != nil {
			return nil, fmt.Errorf("read trace results: %w", err)
		}
		r.Status = engine.TraceStatus(status)
		r.Code = engine.ErrorCode(code)
		r.Duration = time.Duration(durationMicros) * time.Microsecond
		if rep := byTest[test]; rep != nil {
			rep.Traces = append(rep.Traces, r)
		}
	}
	if err := results.Err(); err != nil {
		return nil, fmt.Errorf("read trace results: %w", err)
	}

	for _, rep := range reports {
		for i := range rep.Traces {
			if rep.Traces[i].Failed() {
				rep.FirstFailure = &rep.Traces[i]
				break
			}
		}
	}
	return reports, nil
}

// Outcome is one recorded result of a fingerprinted trace.
type Outcome struct {
	RunID     string             `json:"run_id"`
	Seq       int64              `json:"seq"`
	Status    engine.TraceStatus `json:"status"`
	StepIndex int                `json:"step_index"`
}

// Divergence is a trace that was replayed more than once with different
// outcomes.
type Divergence struct {
	Test        string    `json:"test"`
	Fingerprint string    `json:"fingerprint"`
	Outcomes    []Outcome `json:"outcomes"`
}

// FindNondeterministic returns every (test, fingerprint) pair whose recorded
// outcomes disagree on status or failing step, ordered by test and
// fingerprint. Outcomes are ordered by seq.
func (s *Store) FindNondeterministic(ctx context.Context) ([]Divergence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.test, t.fingerprint, t.run_id, r.seq, t.status, t.step_index
		FROM trace_results t
		JOIN runs r ON r.id = t.run_id
		WHERE t.fingerprint != ''
		  AND (t.test, t.fingerprint) IN (
		      SELECT test, fingerprint FROM trace_results
		      WHERE fingerprint != ''
		      GROUP BY test, fingerprint
		      HAVING COUNT(DISTINCT status || ':' || step_index) > 1
		  )
		ORDER BY t.test ASC COLLATE BINARY, t.fingerprint ASC, r.seq ASC, t.trace_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find nondeterministic: %w", err)
	}
	defer rows.Close()

	var out []Divergence
	for rows.Next() {
		var (
			test, fp string
			o        Outcome
			status   string
		)
		if err := rows.Scan(&test, &fp, &o.RunID, &o.Seq, &status, &o.StepIndex); err != nil {
			return nil, fmt.Errorf("find nondeterministic: %w", err)
		}
		o.Status = engine.TraceStatus(status)
		if n := len(out); n == 0 || out[n-1].Test != test || out[n-1].Fingerprint != fp {
			out = append(out, Divergence{Test: test, Fingerprint: fp})
		}
		last := &out[len(out)-1]
		last.Outcomes = append(last.Outcomes, o)
	}
	return out, rows.Err()
}
