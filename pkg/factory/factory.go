// Package factory turns a validated declarative tree into a live component
// tree: it resolves every leaf through the loader matching its mode, wraps
// loaded code behind the fault guard, gives each instance its own persisted
// state directory, and registers every instance on the event bus under a
// unique name.
package factory

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/pkg/composite"
	"github.com/gridmarket/negotiator/pkg/config"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/events"
	"github.com/gridmarket/negotiator/pkg/guard"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// Factory builds live trees. One factory can build any number of trees; each
// Build call dedups names against its own tree only.
type Factory struct {
	static  ports.Loader
	shared  ports.Loader
	workDir string
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures the factory.
type Option func(*Factory)

// WithSharedLoader enables shared-mode nodes. Without it, a shared node fails
// the build with a LoadFailure.
func WithSharedLoader(l ports.Loader) Option {
	return func(f *Factory) { f.shared = l }
}

// New creates a factory resolving static nodes through the given loader and
// rooting every instance's state directory under workDir.
func New(static ports.Loader, workDir string, clk clock.Clock, logger *slog.Logger, opts ...Option) *Factory {
	f := &Factory{
		static:  static,
		workDir: workDir,
		clock:   clk,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Host is one built tree: the root component plus the bus addressing every
// instance inside it.
type Host struct {
	root      ports.Component
	bus       *events.Bus
	instances []string
}

// Root returns the tree's root component.
func (h *Host) Root() ports.Component { return h.root }

// Bus returns the event/control channel covering this tree's instances.
func (h *Host) Bus() *events.Bus { return h.bus }

// Instances returns every instance name in build order. Dedup suffixes are
// already applied, so these are the names control commands address.
func (h *Host) Instances() []string { return append([]string(nil), h.instances...) }

// Close shuts the tree down: the root cascades Shutdown through composites to
// every leaf, then the bus drains and stops.
func (h *Host) Close() error {
	err := h.root.Shutdown()
	h.bus.Close()
	return err
}

// Build constructs the live tree for a validated config. Construction is
// all-or-nothing: any leaf failing to load fails the whole build, and already
// constructed instances are shut down again.
func (f *Factory) Build(tree *config.Tree, busOpts ...events.Option) (*Host, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}

	b := &build{
		factory: f,
		tree:    tree,
		bus:     events.NewBus(f.clock, f.logger, busOpts...),
		used:    make(map[string]bool),
	}
	root, err := b.node(tree.Root, 0)
	if err != nil {
		// Leaves shut down idempotently, so cascading composites repeating a
		// leaf's shutdown here is harmless.
		for j := len(b.built) - 1; j >= 0; j-- {
			_ = b.built[j].Shutdown()
		}
		b.bus.Close()
		return nil, err
	}

	f.logger.Info("component tree built",
		slog.String("root", tree.Nodes[tree.Root].Name),
		slog.Int("instances", len(b.instances)))
	return &Host{root: root, bus: b.bus, instances: b.instances}, nil
}

type build struct {
	factory   *Factory
	tree      *config.Tree
	bus       *events.Bus
	used      map[string]bool
	instances []string
	built     []ports.Component
}

// node builds the instance at index i. callTimeout is the per-call bound the
// enclosing composite imposes on this child; the root gets none.
func (b *build) node(i int, callTimeout time.Duration) (ports.Component, error) {
	node := b.tree.Nodes[i]
	name := b.allocateName(node.Name)

	var (
		component ports.Component
		err       error
	)
	switch node.Mode {
	case config.ModeComposite:
		component, err = b.composite(node, name)
	default:
		component, err = b.leaf(node, name, callTimeout)
	}
	if err != nil {
		return nil, err
	}

	if err := b.bus.Subscribe(name, component); err != nil {
		_ = component.Shutdown()
		return nil, fmt.Errorf("%w: registering %q: %v", domain.ErrLoadFailure, name, err)
	}
	b.instances = append(b.instances, name)
	b.built = append(b.built, component)
	return component, nil
}

func (b *build) composite(node config.Node, name string) (ports.Component, error) {
	policy := node.Policy()
	engine := composite.New(name, policy, b.factory.clock, b.factory.logger)
	for _, childIdx := range node.Children {
		child, err := b.node(childIdx, policy.CallTimeout)
		if err != nil {
			return nil, err
		}
		engine.Add(b.instances[len(b.instances)-1], child)
	}
	return engine, nil
}

func (b *build) leaf(node config.Node, name string, callTimeout time.Duration) (ports.Component, error) {
	loader := b.factory.static
	if node.Mode == config.ModeShared {
		loader = b.factory.shared
		if loader == nil {
			return nil, fmt.Errorf("%w: node %q requires shared library loading, which is not enabled",
				domain.ErrLoadFailure, name)
		}
	}

	workDir, err := b.factory.instanceDir(name)
	if err != nil {
		return nil, err
	}
	inner, err := loader.Load(ports.InstanceSpec{
		Name:      name,
		Component: node.Component,
		Path:      node.Path,
		Params:    node.Params,
		WorkDir:   workDir,
	})
	if err != nil {
		return nil, err
	}
	return guard.Wrap(name, inner, b.factory.clock, callTimeout, b.factory.logger), nil
}

// allocateName dedups instance names within one tree: the second "price-cap"
// becomes "price-cap#1", the third "price-cap#2", and so on. The suffixed
// name is what the work directory, log lines and control commands use.
func (b *build) allocateName(name string) string {
	unique := name
	for n := 1; b.used[unique]; n++ {
		unique = fmt.Sprintf("%s#%d", name, n)
	}
	b.used[unique] = true
	return unique
}

// instanceDir reserves the instance's private state directory, keyed by the
// dedup-suffixed name itself. Instance names are unique within a tree, so the
// directories are too; rewriting the '#' could collide with a literal name.
func (f *Factory) instanceDir(name string) (string, error) {
	if f.workDir == "" {
		return "", nil
	}
	dir := filepath.Join(f.workDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating work directory for %q: %v", domain.ErrLoadFailure, name, err)
	}
	return dir, nil
}
