package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/conform/internal/trace"
)

// ErrorCode categorizes why a trace stopped.
type ErrorCode string

const (
	// ErrCodeStateMismatch indicates a participant's concrete state diverged
	// from the model. This is the only code that fails a trace.
	ErrCodeStateMismatch ErrorCode = "STATE_MISMATCH"

	// ErrCodeMissingField indicates a step lookup did not resolve.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrCodeTypeMismatch indicates a step value had the wrong shape.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownParticipant indicates the model and the driver disagree
	// on the participant set.
	ErrCodeUnknownParticipant ErrorCode = "UNKNOWN_PARTICIPANT"

	// ErrCodeUnhandledTransition indicates an action outside the vocabulary.
	ErrCodeUnhandledTransition ErrorCode = "UNHANDLED_TRANSITION"

	// ErrCodePanic indicates the driver panicked.
	ErrCodePanic ErrorCode = "PANIC"

	// ErrCodePoisoned indicates a driver was used after a fault.
	ErrCodePoisoned ErrorCode = "POISONED"

	// ErrCodeCancelled indicates the run was cancelled.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodeTraceSource indicates the trace could not be acquired.
	ErrCodeTraceSource ErrorCode = "TRACE_SOURCE"

	// ErrCodeDriver indicates any other error returned by the driver.
	ErrCodeDriver ErrorCode = "DRIVER_ERROR"
)

// ErrPoisoned is returned by a driver or pool that faulted earlier in the
// trace. A poisoned driver must be discarded.
var ErrPoisoned = errors.New("driver is poisoned")

// StateMismatch is one participant whose projected concrete state differs
// from the model's state.
type StateMismatch struct {
	Participant string
	Expected    any
	Actual      any
}

// MismatchError reports every mismatching participant of one step, sorted
// by participant id. The first entry is the primary failure.
type MismatchError struct {
	Step       int
	Mismatches []StateMismatch
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if len(e.Mismatches) == 0 {
		return fmt.Sprintf("state mismatch at step %d", e.Step)
	}
	first := e.Mismatches[0]
	msg := fmt.Sprintf("state mismatch at step %d for participant %s: expected %s, actual %s",
		e.Step, first.Participant, Render(first.Expected), Render(first.Actual))
	if n := len(e.Mismatches) - 1; n > 0 {
		others := make([]string, 0, n)
		for _, m := range e.Mismatches[1:] {
			others = append(others, m.Participant)
		}
		msg += fmt.Sprintf(" (also: %s)", strings.Join(others, ", "))
	}
	return msg
}

// Primary returns the first mismatch.
func (e *MismatchError) Primary() StateMismatch {
	if len(e.Mismatches) == 0 {
		return StateMismatch{}
	}
	return e.Mismatches[0]
}

// Participant sides for UnknownParticipantError.
const (
	// MissingInDriver means the model has a participant the driver lacks.
	MissingInDriver = "driver"

	// MissingInModel means the driver tracks a participant the model lacks.
	MissingInModel = "model"
)

// UnknownParticipantError reports a participant known to only one side.
type UnknownParticipantError struct {
	Step        int
	Participant string

	// MissingIn is MissingInDriver or MissingInModel.
	MissingIn string
}

// Error implements the error interface.
func (e *UnknownParticipantError) Error() string {
	return fmt.Sprintf("unknown participant %q at step %d: not tracked by the %s", e.Participant, e.Step, e.MissingIn)
}

// UnhandledTransitionError reports an action with no handler.
type UnhandledTransitionError struct {
	Step   int
	Action string
}

// Error implements the error interface.
func (e *UnhandledTransitionError) Error() string {
	return fmt.Sprintf("unhandled transition %q at step %d", e.Action, e.Step)
}

// PanicError wraps a value recovered from a panicking driver.
type PanicError struct {
	Step  int
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("driver panicked during setup: %v", e.Value)
	}
	return fmt.Sprintf("driver panicked at step %d: %v", e.Step, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// SwitchError reports a dispatch table that does not cover its vocabulary
// exactly. It is raised when the table is built, before any trace runs.
type SwitchError struct {
	// Missing lists declared transitions without a handler.
	Missing []string

	// Undeclared lists handlers for transitions outside the vocabulary.
	Undeclared []string
}

// Error implements the error interface.
func (e *SwitchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "no handler for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Undeclared) > 0 {
		parts = append(parts, "handler for undeclared "+strings.Join(e.Undeclared, ", "))
	}
	return "incomplete dispatch: " + strings.Join(parts, "; ")
}

// IsMismatch returns true if the error is a state mismatch.
// Uses errors.As to handle wrapped errors.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// IsUnhandled returns true if the error is an unhandled transition, either
// at dispatch time or while building the dispatch table.
func IsUnhandled(err error) bool {
	var ue *UnhandledTransitionError
	if errors.As(err, &ue) {
		return true
	}
	var se *SwitchError
	return errors.As(err, &se)
}

// IsUnknownParticipant returns true if the error is an unknown participant.
func IsUnknownParticipant(err error) bool {
	var ue *UnknownParticipantError
	return errors.As(err, &ue)
}

// IsPanic returns true if the error wraps a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Classify maps a trace-ending error to its status and code.
// Only state mismatches fail a trace; everything else errors it.
func Classify(err error) (TraceStatus, ErrorCode) {
	var (
		pe *PanicError
		se *sourceError
	)
	switch {
	case err == nil:
		return StatusPassed, ""
	case errors.As(err, &pe):
		return StatusErrored, ErrCodePanic
	case IsMismatch(err):
		return StatusFailed, ErrCodeStateMismatch
	case errors.As(err, &se):
		return StatusErrored, ErrCodeTraceSource
	case trace.IsMissingField(err):
		return StatusErrored, ErrCodeMissingField
	case trace.IsTypeMismatch(err):
		return StatusErrored, ErrCodeTypeMismatch
	case IsUnknownParticipant(err):
		return StatusErrored, ErrCodeUnknownParticipant
	case IsUnhandled(err):
		return StatusErrored, ErrCodeUnhandledTransition
	case errors.Is(err, ErrPoisoned):
		return StatusErrored, ErrCodePoisoned
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusErrored, ErrCodeCancelled
	default:
		return StatusErrored, ErrCodeDriver
	}
}

// sourceError marks a failure to acquire or read a trace.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return "trace source: " + e.err.Error() }

func (e *sourceError) Unwrap() error { return e.err }
