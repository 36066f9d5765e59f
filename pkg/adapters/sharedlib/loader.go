// Package sharedlib resolves component implementations from a dynamically
// loaded library (a Go plugin). A library exposes four fixed entry points
// operating on an opaque handle, plus a version tag checked at load time:
//
//	var ComponentAPIVersion = sharedlib.APIVersion
//	func Construct(name string, params map[string]any, workDir string) (any, error)
//	func Decide(handle any, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error)
//	func Notify(handle any, event domain.Event)
//	func Shutdown(handle any) error
//
// Any resolution problem, the version tag included, is a LoadFailure for that
// component only; the loader never hands out a partially constructed
// component. Libraries stay mapped until process exit: Go plugins cannot be
// unloaded, which matches the host's no-hot-swap lifetime anyway.
package sharedlib

import (
	"context"
	"fmt"
	"plugin"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// APIVersion is the host's expected version tag. Bump on any change to the
// entry point signatures.
const APIVersion = "negotiator-component/v1"

// Entry point symbol names.
const (
	symVersion   = "ComponentAPIVersion"
	symConstruct = "Construct"
	symDecide    = "Decide"
	symNotify    = "Notify"
	symShutdown  = "Shutdown"
)

type constructFunc = func(name string, params map[string]any, workDir string) (any, error)
type decideFunc = func(handle any, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error)
type notifyFunc = func(handle any, event domain.Event)
type shutdownFunc = func(handle any) error

// symbolResolver abstracts plugin.Plugin so loading logic is testable without
// compiling real libraries.
type symbolResolver interface {
	Lookup(name string) (plugin.Symbol, error)
}

// openLibrary is swapped out by tests.
var openLibrary = func(path string) (symbolResolver, error) {
	return plugin.Open(path)
}

// Loader implements ports.Loader over dynamically resolved libraries.
type Loader struct {
	// libraries caches opened paths; a library hosting several component
	// instances is mapped once.
	libraries map[string]*library
}

type library struct {
	construct constructFunc
	decide    decideFunc
	notify    notifyFunc
	shutdown  shutdownFunc
}

// New creates an empty loader.
func New() *Loader {
	return &Loader{libraries: make(map[string]*library)}
}

// Load opens the library at spec.Path, verifies the version tag, resolves the
// four entry points and constructs the instance.
func (l *Loader) Load(spec ports.InstanceSpec) (ports.Component, error) {
	lib, err := l.open(spec.Path)
	if err != nil {
		return nil, err
	}
	handle, err := lib.construct(spec.Name, spec.Params, spec.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("%w: constructing %q from %s: %v",
			domain.ErrLoadFailure, spec.Name, spec.Path, err)
	}
	return &component{lib: lib, handle: handle}, nil
}

func (l *Loader) open(path string) (*library, error) {
	if lib, ok := l.libraries[path]; ok {
		return lib, nil
	}

	resolver, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening library %s: %v", domain.ErrLoadFailure, path, err)
	}

	version, err := lookupAs[*string](resolver, symVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: library %s: %v", domain.ErrLoadFailure, path, err)
	}
	if *version != APIVersion {
		return nil, fmt.Errorf("%w: library %s has version %q, host expects %q",
			domain.ErrLoadFailure, path, *version, APIVersion)
	}

	lib := &library{}
	if lib.construct, err = lookupAs[constructFunc](resolver, symConstruct); err == nil {
		if lib.decide, err = lookupAs[decideFunc](resolver, symDecide); err == nil {
			if lib.notify, err = lookupAs[notifyFunc](resolver, symNotify); err == nil {
				lib.shutdown, err = lookupAs[shutdownFunc](resolver, symShutdown)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: library %s: %v", domain.ErrLoadFailure, path, err)
	}

	l.libraries[path] = lib
	return lib, nil
}

func lookupAs[T any](resolver symbolResolver, name string) (T, error) {
	var zero T
	sym, err := resolver.Lookup(name)
	if err != nil {
		return zero, fmt.Errorf("missing entry point %q", name)
	}
	typed, ok := sym.(T)
	if !ok {
		return zero, fmt.Errorf("entry point %q has type %T", name, sym)
	}
	return typed, nil
}

// component adapts the handle-based entry points to ports.Component.
type component struct {
	lib    *library
	handle any
}

func (c *component) Decide(_ context.Context, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error) {
	return c.lib.decide(c.handle, proposal, info)
}

func (c *component) Notify(event domain.Event) {
	c.lib.notify(c.handle, event)
}

func (c *component) Shutdown() error {
	return c.lib.shutdown(c.handle)
}
