package engine

import (
	"fmt"

	"github.com/roach88/conform/internal/trace"
)

// Driver adapts one system under test to the executor.
//
// A driver is created fresh for every trace and never shared between traces.
// Step applies the step's transition to the targeted participants only;
// Check compares every tracked participant against the step's model state
// without mutating anything.
type Driver interface {
	// NondetPicks resolves the step's nondeterministic choices.
	NondetPicks(step trace.Step) (NondetPicks, error)

	// ActionTaken returns the resolved action name, or false if the step
	// carries none.
	ActionTaken(step trace.Step) (string, bool)

	// Step applies the step. A nil error is a successful status.
	Step(step trace.Step) error

	// Check returns nil, a *MismatchError or a lookup error.
	Check(step trace.Step) error
}

// Poisonable is implemented by drivers that track faults explicitly. The
// executor poisons a driver after any trace-ending error and never reuses it.
type Poisonable interface {
	Poison(cause error)
	Poisoned() error
}

// Factory creates a fresh driver for one trace.
type Factory func() (Driver, error)

// Adapter supplies the default NondetPicks and ActionTaken of a Driver from
// a Resolver. Adapters embed it and may override either method.
type Adapter struct {
	Resolver *Resolver
}

// NondetPicks implements Driver.
func (a Adapter) NondetPicks(step trace.Step) (NondetPicks, error) {
	if a.Resolver == nil {
		return NondetPicks{}, fmt.Errorf("adapter: nil resolver")
	}
	return a.Resolver.Resolve(step)
}

// ActionTaken implements Driver.
func (a Adapter) ActionTaken(step trace.Step) (string, bool) {
	if a.Resolver == nil {
		return "", false
	}
	return a.Resolver.ActionTaken(step)
}

// Machine is a complete Driver assembled from a Resolver, a Switch and a
// Comparator over a trace-scoped Pool.
//
//	vocab := engine.MustVocabulary(ids, engine.Transition{Name: "Timeout", Target: engine.TargetOne})
//	sw, err := engine.NewSwitch(vocab, handlers)
//	m := engine.NewMachine(engine.NewResolver(vocab), sw, engine.Comparator[NodeState, *Node]{...})
type Machine[S any, I any] struct {
	Adapter

	sw      *Switch[I]
	compare Comparator[S, I]
	pool    *Pool[I]
}

// NewMachine assembles a driver with an empty pool.
func NewMachine[S any, I any](r *Resolver, sw *Switch[I], cmp Comparator[S, I]) *Machine[S, I] {
	return &Machine[S, I]{
		Adapter: Adapter{Resolver: r},
		sw:      sw,
		compare: cmp,
		pool:    NewPool[I](),
	}
}

// Step implements Driver.
func (m *Machine[S, I]) Step(step trace.Step) error {
	if err := m.pool.Poisoned(); err != nil {
		return fmt.Errorf("step %d: %w", step.Index, ErrPoisoned)
	}
	picks, err := m.NondetPicks(step)
	if err != nil {
		return err
	}
	return m.sw.Dispatch(m.pool, step, picks)
}

// Check implements Driver.
func (m *Machine[S, I]) Check(step trace.Step) error {
	return m.compare.Check(step, m.pool)
}

// Pool returns the machine's participant pool.
func (m *Machine[S, I]) Pool() *Pool[I] {
	return m.pool
}

// Poison implements Poisonable.
func (m *Machine[S, I]) Poison(cause error) {
	m.pool.Poison(cause)
}

// Poisoned implements Poisonable.
func (m *Machine[S, I]) Poisoned() error {
	return m.pool.Poisoned()
}
