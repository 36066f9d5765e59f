package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// Constructor builds a component instance from its spec.
type Constructor func(spec ports.InstanceSpec) (ports.Component, error)

// Registry manages build-time component constructors. It is written during
// startup registration and read concurrently by every Session afterwards.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register adds a constructor under the given name.
// If the name is taken, the previous constructor is overwritten.
func (r *Registry) Register(name string, fn Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = fn
}

// Resolve looks up a constructor by name.
func (r *Registry) Resolve(name string) (Constructor, error) {
	r.mu.RLock()
	fn, ok := r.constructors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: component %q not registered", domain.ErrLoadFailure, name)
	}
	return fn, nil
}

// Names returns the registered component names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry statically linked components register
// into, usually from an init function.
var Default = New()

// Register adds a constructor to the Default registry.
func Register(name string, fn Constructor) {
	Default.Register(name, fn)
}
