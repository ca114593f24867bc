package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/conform/internal/engine"
)

// SuiteSnapshot is the stable part of a suite result: everything except run
// ids, sequence numbers, fingerprints, durations and free-form reasons.
type SuiteSnapshot struct {
	Suite  string             `json:"suite"`
	Status engine.TraceStatus `json:"status"`
	OK     bool               `json:"ok"`
	Tests  []TestSnapshot     `json:"tests"`
}

// TestSnapshot captures one test of a SuiteSnapshot.
type TestSnapshot struct {
	Test   string             `json:"test"`
	Status engine.TraceStatus `json:"status"`
	OK     bool               `json:"ok"`
	Traces []TraceSnapshot    `json:"traces"`
}

// TraceSnapshot captures one trace result. Trace is the base name of the
// trace source.
type TraceSnapshot struct {
	Index       int                `json:"index"`
	Trace       string             `json:"trace"`
	Status      engine.TraceStatus `json:"status"`
	Steps       int                `json:"steps"`
	StepIndex   int                `json:"step_index"`
	Action      string             `json:"action,omitempty"`
	Participant string             `json:"participant,omitempty"`
	Code        engine.ErrorCode   `json:"code,omitempty"`
	Expected    string             `json:"expected,omitempty"`
	Actual      string             `json:"actual,omitempty"`
}

// Snapshot builds the snapshot of res.
func Snapshot(res *SuiteResult) SuiteSnapshot {
	snap := SuiteSnapshot{
		Suite:  res.Suite,
		Status: res.Status,
		OK:     res.OK(),
		Tests:  make([]TestSnapshot, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		ts := TestSnapshot{
			Test:   o.Report.Test,
			Status: o.Report.Status,
			OK:     o.OK(),
			Traces: make([]TraceSnapshot, 0, len(o.Report.Traces)),
		}
		for _, tr := range o.Report.Traces {
			ts.Traces = append(ts.Traces, TraceSnapshot{
				Index:       tr.Index,
				Trace:       filepath.Base(tr.Name),
				Status:      tr.Status,
				Steps:       tr.Steps,
				StepIndex:   tr.StepIndex,
				Action:      tr.Action,
				Participant: tr.Participant,
				Code:        tr.Code,
				Expected:    tr.Expected,
				Actual:      tr.Actual,
			})
		}
		snap.Tests = append(snap.Tests, ts)
	}
	return snap
}

// MarshalSnapshot renders the snapshot of res as indented JSON with a
// trailing newline.
func MarshalSnapshot(res *SuiteResult) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot(res), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares the snapshot of res against a golden file.
// The golden file is stored in testdata/golden/{name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, res *SuiteResult) {
	t.Helper()

	data, err := MarshalSnapshot(res)
	if err != nil {
		t.Fatalf("failed to marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
