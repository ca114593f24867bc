package engine

import (
	"fmt"
	"maps"
	"slices"
)

// Pool maps participant ids to the concrete instances of one trace.
//
// A Pool is owned by exactly one driver and one trace. It is not safe for
// concurrent use and is never shared. Once poisoned it refuses all further
// mutation; the owning driver must be discarded.
type Pool[T any] struct {
	instances map[string]T
	poisoned  error
}

// NewPool returns an empty pool.
func NewPool[T any]() *Pool[T] {
	return &Pool[T]{instances: make(map[string]T)}
}

// Put stores the instance for id, replacing any previous one.
func (p *Pool[T]) Put(id string, inst T) error {
	if p.poisoned != nil {
		return fmt.Errorf("put %s: %w", id, ErrPoisoned)
	}
	p.instances[id] = inst
	return nil
}

// Get returns the instance for id.
func (p *Pool[T]) Get(id string) (T, bool) {
	inst, ok := p.instances[id]
	return inst, ok
}

// IDs returns the tracked participant ids, sorted.
func (p *Pool[T]) IDs() []string {
	return slices.Sorted(maps.Keys(p.instances))
}

// Len returns the number of tracked participants.
func (p *Pool[T]) Len() int {
	return len(p.instances)
}

// Reset drops every instance. It does not clear the poison flag.
func (p *Pool[T]) Reset() error {
	if p.poisoned != nil {
		return fmt.Errorf("reset: %w", ErrPoisoned)
	}
	clear(p.instances)
	return nil
}

// Poison marks the pool unusable. The first cause is kept.
func (p *Pool[T]) Poison(cause error) {
	if p.poisoned != nil {
		return
	}
	if cause == nil {
		cause = ErrPoisoned
	}
	p.poisoned = cause
}

// Poisoned returns the cause the pool was poisoned with, or nil.
func (p *Pool[T]) Poisoned() error {
	return p.poisoned
}
