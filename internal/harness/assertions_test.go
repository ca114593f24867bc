package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/engine"
)

func intPtr(n int) *int { return &n }

func failedReport() *engine.Report {
	tr := engine.TraceResult{
		Index:       0,
		Name:        "late_quorum.itf.json",
		Status:      engine.StatusFailed,
		Steps:       7,
		StepIndex:   7,
		Action:      "ReceiveVote",
		Participant: "p1",
		Code:        engine.ErrCodeStateMismatch,
		Reason:      "check 7: state mismatch",
	}
	rep := &engine.Report{Test: "buggy", Status: engine.StatusFailed, Traces: []engine.TraceResult{tr}}
	rep.FirstFailure = &rep.Traces[0]
	return rep
}

// TestCheckExpectation tests matching a report against expectations.
func TestCheckExpectation(t *testing.T) {
	passed := &engine.Report{Test: "ok", Status: engine.StatusPassed}

	tests := []struct {
		name      string
		report    *engine.Report
		expect    *Expectation
		wantField string // empty means the expectation holds
	}{
		{"nil expectation", failedReport(), nil, ""},
		{"status only", failedReport(), &Expectation{Status: "failed"}, ""},
		{"full match", failedReport(), &Expectation{Status: "failed", Step: intPtr(7), Participant: "p1", Code: "STATE_MISMATCH"}, ""},
		{"expected pass", passed, &Expectation{Status: "passed"}, ""},
		{"wrong status", passed, &Expectation{Status: "failed"}, "status"},
		{"wrong step", failedReport(), &Expectation{Status: "failed", Step: intPtr(4)}, "step"},
		{"wrong participant", failedReport(), &Expectation{Status: "failed", Participant: "p2"}, "participant"},
		{"wrong code", failedReport(), &Expectation{Status: "failed", Code: "PANIC"}, "code"},
		{"step without failure", passed, &Expectation{Status: "passed", Step: intPtr(0)}, "step"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpectation(tt.report, tt.expect)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.True(t, errors.As(err, &ae), "expected *AssertionError, got %v", err)
			assert.Equal(t, tt.wantField, ae.Field)
		})
	}
}

// TestAssertionError_Message tests that the message carries the failing
// trace.
func TestAssertionError_Message(t *testing.T) {
	err := CheckExpectation(failedReport(), &Expectation{Status: "failed", Step: intPtr(3)})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `test "buggy": expectation failed: step`)
	assert.Contains(t, msg, "Expected: 3")
	assert.Contains(t, msg, "Actual: 7")
	assert.Contains(t, msg, "[0] late_quorum.itf.json step 7: check 7: state mismatch")
}

func TestOutcome_OK(t *testing.T) {
	assert.True(t, Outcome{Report: &engine.Report{Status: engine.StatusPassed}}.OK())
	assert.False(t, Outcome{Report: failedReport()}.OK())
	assert.True(t, Outcome{Report: failedReport(), Expect: &Expectation{Status: "failed"}}.OK())
	assert.False(t, Outcome{
		Report: failedReport(),
		Expect: &Expectation{Status: "passed"},
		Err:    errors.New("status"),
	}.OK())
}
