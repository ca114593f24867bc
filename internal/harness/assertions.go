package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/conform/internal/engine"
)

// AssertionError is returned when a report does not meet its test's
// expectation. It includes the failing trace to help debug the mismatch.
type AssertionError struct {
	Test     string
	Field    string // Expectation field that did not match
	Expected string
	Actual   string
	Trace    *engine.TraceResult // First failing trace, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "test %q: expectation failed: %s\n", e.Test, e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Trace != nil {
		fmt.Fprintf(&buf, "\nFirst failing trace:\n")
		fmt.Fprintf(&buf, "  [%d] %s step %d: %s\n", e.Trace.Index, e.Trace.Name, e.Trace.StepIndex, e.Trace.Reason)
	}
	return buf.String()
}

// CheckExpectation compares a report against exp. Step, Participant and
// Code are matched against the first failing trace.
func CheckExpectation(rep *engine.Report, exp *Expectation) error {
	if exp == nil {
		return nil
	}

	if string(rep.Status) != exp.Status {
		return mismatch(rep, "status", exp.Status, string(rep.Status))
	}

	first := rep.FirstFailure
	if exp.Step != nil {
		if err := assertFailure(rep, "step", first, func(f *engine.TraceResult) (string, bool) {
			return fmt.Sprint(f.StepIndex), f.StepIndex == *exp.Step
		}, fmt.Sprint(*exp.Step)); err != nil {
			return err
		}
	}
	if exp.Participant != "" {
		if err := assertFailure(rep, "participant", first, func(f *engine.TraceResult) (string, bool) {
			return f.Participant, f.Participant == exp.Participant
		}, exp.Participant); err != nil {
			return err
		}
	}
	if exp.Code != "" {
		if err := assertFailure(rep, "code", first, func(f *engine.TraceResult) (string, bool) {
			return string(f.Code), string(f.Code) == exp.Code
		}, exp.Code); err != nil {
			return err
		}
	}
	return nil
}

// assertFailure checks one field of the first failing trace.
func assertFailure(rep *engine.Report, field string, first *engine.TraceResult,
	get func(*engine.TraceResult) (string, bool), want string) error {
	if first == nil {
		return mismatch(rep, field, want, "no failing trace")
	}
	if got, ok := get(first); !ok {
		return mismatch(rep, field, want, got)
	}
	return nil
}

func mismatch(rep *engine.Report, field, expected, actual string) *AssertionError {
	return &AssertionError{
		Test:     rep.Test,
		Field:    field,
		Expected: expected,
		Actual:   actual,
		Trace:    rep.FirstFailure,
	}
}
