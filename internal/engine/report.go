package engine

import (
	"errors"
	"time"
)

// TraceStatus is the state of one trace execution.
//
//	NotStarted → Running → {Passed, Failed, Errored}
type TraceStatus string

const (
	StatusNotStarted TraceStatus = "not_started"
	StatusRunning    TraceStatus = "running"
	StatusPassed     TraceStatus = "passed"
	StatusFailed     TraceStatus = "failed"
	StatusErrored    TraceStatus = "errored"
)

// Terminal reports whether s is Passed, Failed or Errored.
func (s TraceStatus) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusErrored
}

// Mismatch is the report form of a StateMismatch, with both states rendered
// as canonical JSON.
type Mismatch struct {
	Participant string `json:"participant"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
}

// TraceResult is the outcome of one sampled trace.
type TraceResult struct {
	// Index is the sample index within the test.
	Index int `json:"trace_index"`

	// Name is the trace source, usually a file path.
	Name string `json:"name,omitempty"`

	Fingerprint string      `json:"fingerprint,omitempty"`
	Status      TraceStatus `json:"status"`

	// Steps is the number of steps that were applied and checked without
	// error.
	Steps int `json:"steps"`

	// StepIndex is the index of the step that ended the trace, or -1.
	StepIndex int `json:"step_index"`

	Action      string    `json:"action,omitempty"`
	Participant string    `json:"participant,omitempty"`
	Code        ErrorCode `json:"code,omitempty"`
	Reason      string    `json:"reason,omitempty"`

	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`

	// Mismatches lists every mismatching participant of the failing step.
	Mismatches []Mismatch `json:"mismatches,omitempty"`

	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// Failed reports whether the trace did not pass.
func (r TraceResult) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusErrored
}

// fail records err as the trace-ending error of step.
func (r *TraceResult) fail(step int, err error) {
	r.Status, r.Code = Classify(err)
	r.StepIndex = step
	r.Err = err
	r.Reason = err.Error()

	var me *MismatchError
	if errors.As(err, &me) {
		for _, m := range me.Mismatches {
			r.Mismatches = append(r.Mismatches, Mismatch{
				Participant: m.Participant,
				Expected:    Render(m.Expected),
				Actual:      Render(m.Actual),
			})
		}
		if len(r.Mismatches) > 0 {
			r.Participant = r.Mismatches[0].Participant
			r.Expected = r.Mismatches[0].Expected
			r.Actual = r.Mismatches[0].Actual
		}
		return
	}

	var ue *UnknownParticipantError
	if errors.As(err, &ue) {
		r.Participant = ue.Participant
	}
	var ut *UnhandledTransitionError
	if errors.As(err, &ut) {
		r.Action = ut.Action
	}
}

// Report aggregates the traces of one declared test.
type Report struct {
	Test   string      `json:"test"`
	Status TraceStatus `json:"status"`

	// Reason explains an Errored report with no failing trace, such as a
	// test whose sampler produced nothing.
	Reason string `json:"reason,omitempty"`

	Traces []TraceResult `json:"traces"`

	// FirstFailure is the failing trace with the lowest index.
	FirstFailure *TraceResult `json:"first_failure,omitempty"`
}

// Passed reports whether every sampled trace passed.
func (r *Report) Passed() bool {
	return r.Status == StatusPassed
}

// Counts returns the number of passed, failed and errored traces.
func (r *Report) Counts() (passed, failed, errored int) {
	for _, t := range r.Traces {
		switch t.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusErrored:
			errored++
		}
	}
	return passed, failed, errored
}

// finalize derives Status and FirstFailure from Traces, which must be sorted
// by index.
func (r *Report) finalize() {
	r.FirstFailure = nil
	for i := range r.Traces {
		if r.Traces[i].Failed() {
			r.FirstFailure = &r.Traces[i]
			break
		}
	}
	switch {
	case r.FirstFailure != nil:
		r.Status = r.FirstFailure.Status
	case len(r.Traces) == 0:
		r.Status = StatusErrored
		if r.Reason == "" {
			r.Reason = "no traces sampled"
		}
	default:
		r.Status = StatusPassed
	}
}
