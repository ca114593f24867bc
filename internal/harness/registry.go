package harness

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/manifest"
)

// DriverFactory builds the per-trace driver factory of a test from the
// test's manifest. It runs once per test, before any trace, so dispatch
// tables are checked against the manifest vocabulary up front.
type DriverFactory func(m *manifest.Manifest) (engine.Factory, error)

// Registry maps driver names used in suite files to driver factories.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]DriverFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]DriverFactory)}
}

// Register adds a driver. Names must be unique and non-empty.
func (r *Registry) Register(name string, f DriverFactory) error {
	if name == "" {
		return fmt.Errorf("driver name is required")
	}
	if f == nil {
		return fmt.Errorf("driver %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("driver %q already registered", name)
	}
	r.drivers[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f DriverFactory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the driver registered under name.
func (r *Registry) Lookup(name string) (DriverFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (registered: %v)", name, r.namesLocked())
	}
	return f, nil
}

// Names returns the registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
