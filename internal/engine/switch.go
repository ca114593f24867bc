package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/conform/internal/trace"
)

// Call is the input of a transition handler.
type Call struct {
	Step  trace.Step
	Picks NondetPicks

	// Targets lists the participants the transition may change, resolved
	// from its Targeting. For ActionInit it is the declared participants.
	Targets []string
}

// Handler applies one transition to the pool.
type Handler[T any] func(pool *Pool[T], call Call) error

// Switch is an exhaustive dispatch table over a Vocabulary.
type Switch[T any] struct {
	vocab    *Vocabulary
	handlers map[string]Handler[T]
}

// NewSwitch builds a dispatch table. Every declared transition, ActionInit
// included, must have exactly one non-nil handler and no handler may name an
// undeclared transition; otherwise a *SwitchError is returned.
func NewSwitch[T any](vocab *Vocabulary, handlers map[string]Handler[T]) (*Switch[T], error) {
	if vocab == nil {
		return nil, fmt.Errorf("switch: nil vocabulary")
	}

	var se SwitchError
	for _, name := range vocab.Names() {
		if handlers[name] == nil {
			se.Missing = append(se.Missing, name)
		}
	}
	for name := range handlers {
		if !vocab.Contains(name) {
			se.Undeclared = append(se.Undeclared, name)
		}
	}
	if len(se.Missing) > 0 || len(se.Undeclared) > 0 {
		slices.Sort(se.Undeclared)
		return nil, &se
	}

	table := make(map[string]Handler[T], len(handlers))
	for name, h := range handlers {
		table[name] = h
	}
	return &Switch[T]{vocab: vocab, handlers: table}, nil
}

// Vocabulary returns the vocabulary the table covers.
func (s *Switch[T]) Vocabulary() *Vocabulary {
	return s.vocab
}

// Dispatch invokes the handler for picks.Action.
//
// ActionInit resets the pool before its handler runs. A TargetOne transition
// requires the participant pick and a tracked participant.
func (s *Switch[T]) Dispatch(pool *Pool[T], step trace.Step, picks NondetPicks) error {
	if err := pool.Poisoned(); err != nil {
		return fmt.Errorf("step %d: %w", step.Index, ErrPoisoned)
	}

	t, ok := s.vocab.Lookup(picks.Action)
	if !ok {
		return &UnhandledTransitionError{Step: step.Index, Action: picks.Action}
	}

	call := Call{Step: step, Picks: picks}
	switch {
	case t.Name == ActionInit:
		if err := pool.Reset(); err != nil {
			return err
		}
		call.Targets = s.vocab.Participants()
	case t.Target == TargetOne:
		if !picks.HasParticipant() {
			return &trace.MissingFieldError{
				Step:     step.Index,
				Path:     []string{VarNondetPicks, picks.participantPick},
				Resolved: 1,
			}
		}
		if _, tracked := pool.Get(picks.Participant); !tracked {
			return &UnknownParticipantError{Step: step.Index, Participant: picks.Participant, MissingIn: MissingInDriver}
		}
		call.Targets = []string{picks.Participant}
	case t.Target == TargetAll:
		call.Targets = pool.IDs()
	}

	if err := s.handlers[t.Name](pool, call); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return nil
}

// InitEach returns an ActionInit handler that creates one instance per
// declared participant.
func InitEach[T any](create func(id string, call Call) (T, error)) Handler[T] {
	return func(pool *Pool[T], call Call) error {
		for _, id := range call.Targets {
			inst, err := create(id, call)
			if err != nil {
				return fmt.Errorf("create %s: %w", id, err)
			}
			if err := pool.Put(id, inst); err != nil {
				return err
			}
		}
		return nil
	}
}

// EachTarget returns a handler that applies fn to every target in order.
// For TargetOne transitions that is exactly the picked participant.
func EachTarget[T any](fn func(id string, inst T, call Call) error) Handler[T] {
	return func(pool *Pool[T], call Call) error {
		for _, id := range call.Targets {
			inst, ok := pool.Get(id)
			if !ok {
				return &UnknownParticipantError{Step: call.Step.Index, Participant: id, MissingIn: MissingInDriver}
			}
			if err := fn(id, inst, call); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
		return nil
	}
}

// NoOp is a handler for transitions with no effect on the pool.
func NoOp[T any](*Pool[T], Call) error {
	return nil
}
