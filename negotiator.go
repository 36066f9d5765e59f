package negotiator

import (
	"context"
	"log/slog"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/adapters/sharedlib"
	"github.com/gridmarket/negotiator/pkg/adapters/staticlib"
	"github.com/gridmarket/negotiator/pkg/builtin"
	"github.com/gridmarket/negotiator/pkg/config"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/events"
	"github.com/gridmarket/negotiator/pkg/factory"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/registry"
	"github.com/gridmarket/negotiator/pkg/session"
)

// Negotiator hosts one live component tree and the sessions negotiating
// through it.
type Negotiator struct {
	host   *factory.Host
	clock  clock.Clock
	logger *slog.Logger

	registry *registry.Registry
	workDir  string
	shared   bool
	busOpts  []events.Option
}

// Option defines a functional option for configuring the Negotiator.
type Option func(*Negotiator)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Negotiator) { n.logger = logger }
}

// WithClock injects the clock every timing path runs on. Tests pass a mock;
// the default is the system clock.
func WithClock(clk clock.Clock) Option {
	return func(n *Negotiator) { n.clock = clk }
}

// WithRegistry replaces the component registry. The default carries the
// builtin components.
func WithRegistry(r *registry.Registry) Option {
	return func(n *Negotiator) { n.registry = r }
}

// WithWorkDir roots per-instance state directories. Without it, instances get
// no persistence directory.
func WithWorkDir(dir string) Option {
	return func(n *Negotiator) { n.workDir = dir }
}

// WithSharedLibraries enables loading components from shared libraries.
func WithSharedLibraries() Option {
	return func(n *Negotiator) { n.shared = true }
}

// WithBusOptions forwards options to the event bus.
func WithBusOptions(opts ...events.Option) Option {
	return func(n *Negotiator) { n.busOpts = append(n.busOpts, opts...) }
}

// New validates and builds the component tree and returns a ready Negotiator.
func New(tree *config.Tree, opts ...Option) (*Negotiator, error) {
	n := &Negotiator{}
	for _, opt := range opts {
		opt(n)
	}
	if n.clock == nil {
		n.clock = clock.New()
	}
	if n.logger == nil {
		n.logger = logging.NewNop()
	}
	if n.registry == nil {
		n.registry = registry.New()
		builtin.Register(n.registry)
	}

	factoryOpts := []factory.Option{}
	if n.shared {
		factoryOpts = append(factoryOpts, factory.WithSharedLoader(sharedlib.New()))
	}
	f := factory.New(staticlib.New(n.registry), n.workDir, n.clock, n.logger, factoryOpts...)

	host, err := f.Build(tree, n.busOpts...)
	if err != nil {
		return nil, err
	}
	n.host = host
	return n, nil
}

// NewSession opens a negotiation session for the given market role, bounded
// by cfg's round and time budgets.
func (n *Negotiator) NewSession(role domain.Role, cfg session.Config) *session.Session {
	return session.New(role, n.host.Root(), cfg, n.clock, n.logger)
}

// Publish broadcasts a market event to every interested component instance.
func (n *Negotiator) Publish(event domain.Event) {
	n.host.Bus().Publish(event)
}

// Control sends an addressed command to the named component instance.
func (n *Negotiator) Control(ctx context.Context, target string, params map[string]any) (map[string]any, error) {
	return n.host.Bus().Control(ctx, target, params)
}

// Instances returns the live instance names in build order.
func (n *Negotiator) Instances() []string {
	return n.host.Instances()
}

// Root exposes the tree's root component for direct evaluation.
func (n *Negotiator) Root() ports.Component {
	return n.host.Root()
}

// Host exposes the underlying built tree, mainly for the HTTP control API.
func (n *Negotiator) Host() *factory.Host {
	return n.host
}

// Close shuts down every component instance and stops the event bus.
func (n *Negotiator) Close() error {
	return n.host.Close()
}
