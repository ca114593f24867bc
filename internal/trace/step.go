package trace

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/roach88/conform/internal/itf"
)

// Step is one state of a trace. Steps are immutable; callers must not modify
// State.
type Step struct {
	// Index is the 0-based position of the state in its trace
	// (ITF #meta.index).
	Index int

	// State binds every model variable to its value in this state.
	State itf.Record
}

// Var returns the value of a top-level variable.
func (s Step) Var(name string) (itf.Value, bool) {
	v, ok := s.State[name]
	return v, ok
}

// MissingFieldError reports a path that does not resolve in a step.
type MissingFieldError struct {
	// Step is the index of the step the lookup ran against.
	Step int

	// Path is the full path requested.
	Path []string

	// Resolved is the number of leading segments that did resolve.
	Resolved int
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	if e.Resolved > 0 && e.Resolved < len(e.Path) {
		return fmt.Sprintf("missing field %q at step %d (no %q under %q)",
			joinPath(e.Path), e.Step, e.Path[e.Resolved], joinPath(e.Path[:e.Resolved]))
	}
	return fmt.Sprintf("missing field %q at step %d", joinPath(e.Path), e.Step)
}

// TypeMismatchError reports a value whose shape does not fit the requested
// type.
type TypeMismatchError struct {
	Step int
	Path []string

	// Want names the requested Go type.
	Want string

	// Got names the ITF kind found at the path.
	Got string

	Err error
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("type mismatch at %q step %d: want %s, got %s", joinPath(e.Path), e.Step, e.Want, e.Got)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying decode error.
func (e *TypeMismatchError) Unwrap() error {
	return e.Err
}

// IsMissingField returns true if err is or wraps a *MissingFieldError.
func IsMissingField(err error) bool {
	var mf *MissingFieldError
	return errors.As(err, &mf)
}

// IsTypeMismatch returns true if err is or wraps a *TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}

// Lookup returns the value at path.
//
// Each segment selects a record field, or a map entry whose key is the
// segment as a string or, when the segment is a decimal integer, as an int.
// Options are not unwrapped.
func Lookup(step Step, path ...string) (itf.Value, error) {
	if len(path) == 0 {
		return step.State, nil
	}

	var cur itf.Value = step.State
	for i, seg := range path {
		next, ok := child(cur, seg)
		if !ok {
			return nil, &MissingFieldError{Step: step.Index, Path: clonePath(path), Resolved: i}
		}
		cur = next
	}
	return cur, nil
}

// Get looks up path and decodes the value into T.
func Get[T any](step Step, path ...string) (T, error) {
	var zero T

	v, err := Lookup(step, path...)
	if err != nil {
		return zero, err
	}

	var out T
	if err := DecodeAt(step.Index, path, v, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// DecodeAt decodes v, found at path in step, into out. A record field that
// the target struct declares but v lacks is a *MissingFieldError for the
// field's full path; every other decode failure is a *TypeMismatchError.
func DecodeAt(step int, path []string, v itf.Value, out any) error {
	err := itf.Decode(v, out)
	if err == nil {
		return nil
	}
	var fe *itf.FieldError
	if errors.As(err, &fe) && fe.Missing {
		full := append(clonePath(path), fe.Path...)
		return &MissingFieldError{Step: step, Path: full, Resolved: len(full) - 1}
	}
	return &TypeMismatchError{
		Step: step,
		Path: clonePath(path),
		Want: reflect.TypeOf(out).Elem().String(),
		Got:  itf.Kind(v),
		Err:  err,
	}
}

func child(v itf.Value, seg string) (itf.Value, bool) {
	switch node := v.(type) {
	case itf.Record:
		next, ok := node[seg]
		return next, ok
	case itf.Map:
		if next, ok := node.Get(itf.Str(seg)); ok {
			return next, true
		}
		if n, ok := new(big.Int).SetString(seg, 10); ok {
			return node.Get(itf.NewBigInt(n))
		}
		return nil, false
	default:
		return nil, false
	}
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}
