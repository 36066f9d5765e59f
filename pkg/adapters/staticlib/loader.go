// Package staticlib resolves component implementations from the build-time
// registry. Statically linked and dynamically loaded components present the
// same handle to the rest of the system; only resolution differs.
package staticlib

import (
	"errors"
	"fmt"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/registry"
)

// Loader implements ports.Loader over a registry.
type Loader struct {
	registry *registry.Registry
}

// New creates a loader over the given registry.
func New(reg *registry.Registry) *Loader {
	return &Loader{registry: reg}
}

// Load resolves the constructor and builds the instance. The instance name is
// used when the spec names no component explicitly, matching how declarative
// trees usually alias a single instance per component.
func (l *Loader) Load(spec ports.InstanceSpec) (ports.Component, error) {
	name := spec.Component
	if name == "" {
		name = spec.Name
	}
	constructor, err := l.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	component, err := constructor(spec)
	if err != nil {
		// Invalid params are the tree author's fault, not a resolution
		// failure; keep the two distinguishable.
		if errors.Is(err, domain.ErrConfigInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: constructing %q: %v", domain.ErrLoadFailure, spec.Name, err)
	}
	return component, nil
}
