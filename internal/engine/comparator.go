package engine

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/conform/internal/itf"
	"github.com/roach88/conform/internal/trace"
)

// DefaultSystemField is the field of the state root that maps participant
// ids to their model state.
const DefaultSystemField = "system"

// Comparator checks a pool against the model state of a step.
//
// S is the model's per-participant state, decoded from the step with `itf`
// struct tags. I is the concrete instance type held by the pool.
type Comparator[S any, I any] struct {
	// StateRoot is the model variable holding the system state,
	// e.g. "ballot::state".
	StateRoot string

	// SystemField defaults to DefaultSystemField.
	SystemField string

	// Project translates an instance into the model's representation.
	Project func(inst I) S

	// Equal compares expected and actual states. Nil means StatesEqual.
	Equal func(expected, actual S) bool
}

// Check compares every participant. The model's participant set must equal
// the pool's; otherwise the first unmatched id (sorted) is reported as an
// *UnknownParticipantError. All mismatching participants are collected into
// one *MismatchError.
func (c Comparator[S, I]) Check(step trace.Step, pool *Pool[I]) error {
	if c.Project == nil {
		return fmt.Errorf("comparator: nil projection")
	}
	if err := pool.Poisoned(); err != nil {
		return fmt.Errorf("check step %d: %w", step.Index, ErrPoisoned)
	}

	systemPath := []string{c.StateRoot, orDefault(c.SystemField, DefaultSystemField)}
	system, err := trace.Lookup(step, systemPath...)
	if err != nil {
		return err
	}
	modelIDs, err := participantIDs(step, systemPath, system)
	if err != nil {
		return err
	}

	poolIDs := pool.IDs()
	for _, id := range modelIDs {
		if _, ok := slices.BinarySearch(poolIDs, id); !ok {
			return &UnknownParticipantError{Step: step.Index, Participant: id, MissingIn: MissingInDriver}
		}
	}
	for _, id := range poolIDs {
		if _, ok := slices.BinarySearch(modelIDs, id); !ok {
			return &UnknownParticipantError{Step: step.Index, Participant: id, MissingIn: MissingInModel}
		}
	}

	equal := c.Equal
	if equal == nil {
		equal = StatesEqual[S]
	}

	var mismatches []StateMismatch
	for _, id := range poolIDs {
		expected, err := trace.Get[S](step, append(slices.Clone(systemPath), id)...)
		if err != nil {
			return err
		}
		inst, _ := pool.Get(id)
		actual := c.Project(inst)
		if !equal(expected, actual) {
			mismatches = append(mismatches, StateMismatch{Participant: id, Expected: expected, Actual: actual})
		}
	}
	if len(mismatches) > 0 {
		return &MismatchError{Step: step.Index, Mismatches: mismatches}
	}
	return nil
}

// ParticipantIDs returns the sorted participant ids of the system map at
// path.
func ParticipantIDs(step trace.Step, path ...string) ([]string, error) {
	system, err := trace.Lookup(step, path...)
	if err != nil {
		return nil, err
	}
	return participantIDs(step, path, system)
}

func participantIDs(step trace.Step, path []string, system itf.Value) ([]string, error) {
	var ids []string
	switch sys := system.(type) {
	case itf.Map:
		for _, e := range sys {
			id, ok := e.Key.(itf.Str)
			if !ok {
				return nil, &trace.TypeMismatchError{
					Step: step.Index, Path: path, Want: "map with string keys", Got: "map with " + itf.Kind(e.Key) + " keys",
				}
			}
			ids = append(ids, string(id))
		}
	case itf.Record:
		ids = sys.SortedKeys()
	default:
		return nil, &trace.TypeMismatchError{Step: step.Index, Path: path, Want: "map", Got: itf.Kind(system)}
	}
	slices.Sort(ids)
	return ids, nil
}

// StatesEqual compares two states by their ITF rendering, so nil and empty
// slices are equal. It falls back to reflect.DeepEqual for values that have
// no ITF rendering.
func StatesEqual[S any](expected, actual S) bool {
	ev, errE := itf.From(expected)
	av, errA := itf.From(actual)
	if errE != nil || errA != nil {
		return reflect.DeepEqual(expected, actual)
	}
	return itf.Equal(ev, av)
}

// Render formats a state for reports: canonical ITF JSON when the value
// converts, Go syntax otherwise.
func Render(v any) string {
	if v == nil {
		return "<nil>"
	}
	if iv, err := itf.From(v); err == nil {
		if s, err := itf.MarshalCanonical(iv); err == nil {
			return string(s)
		}
	}
	return fmt.Sprintf("%+v", v)
}
