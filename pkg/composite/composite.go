// Package composite implements the aggregating component: it fans a Proposal
// out to an ordered set of children, collects their Decisions within a bounded
// window, and derives exactly one aggregated Decision. Composites implement
// the same contract as leaves, so they nest.
package composite

import (
	"context"
	"log/slog"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/pkg/config"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

type child struct {
	name      string
	component ports.Component
}

// Engine aggregates child components under a time window.
type Engine struct {
	name     string
	policy   config.CompositePolicy
	children []child
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates an empty composite. Children added first rank first on score
// ties.
func New(name string, policy config.CompositePolicy, clk clock.Clock, logger *slog.Logger) *Engine {
	if policy.Window <= 0 {
		policy.Window = config.DefaultWindow
	}
	if policy.Fallback == "" {
		policy.Fallback = config.FallbackReject
	}
	return &Engine{
		name:   name,
		policy: policy,
		clock:  clk,
		logger: logger,
	}
}

// Add registers a child. Registration order is the tie-break order and is
// fixed for the composite's lifetime; Add must not be called once Decide is.
func (e *Engine) Add(name string, component ports.Component) {
	e.children = append(e.children, child{name: name, component: component})
}

// Children returns the registered child names in tie-break order.
func (e *Engine) Children() []string {
	names := make([]string, len(e.children))
	for i, c := range e.children {
		names[i] = c.name
	}
	return names
}

type reply struct {
	index    int
	decision domain.Decision
	err      error
}

// Decide fans the Proposal out to every child concurrently and waits until
// either all children replied or the window elapsed, whichever comes first.
// Replies arriving after that point are discarded. The aggregated Decision is
// emitted exactly once.
func (e *Engine) Decide(ctx context.Context, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error) {
	if len(e.children) == 0 {
		return e.fallback(), nil
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered to child count so late repliers never block and simply get
	// garbage collected with their unread reply.
	replies := make(chan reply, len(e.children))
	for i, c := range e.children {
		go func(i int, c child) {
			d, err := c.component.Decide(fanCtx, proposal, info)
			replies <- reply{index: i, decision: d, err: err}
		}(i, c)
	}

	timer := e.clock.Timer(e.policy.Window)
	defer timer.Stop()

	collected := make([]reply, 0, len(e.children))
	for pending := len(e.children); pending > 0; {
		select {
		case r := <-replies:
			pending--
			if r.err != nil {
				// Per-call timeouts and context errors count as "no vote".
				e.logger.Debug("child reply discarded",
					slog.String("composite", e.name),
					slog.String("child", e.children[r.index].name),
					slog.String("err", r.err.Error()))
				continue
			}
			collected = append(collected, r)
		case <-timer.C:
			pending = 0
		case <-ctx.Done():
			// Cancelled fan-out: abandon in-flight children via fanCtx.
			return domain.Decision{}, ctx.Err()
		}
	}

	return e.aggregate(collected), nil
}

// aggregate selects the best reply: the Accept with the highest defined
// Score (ties broken by registration order), else the first-registered
// Negotiate, else the fallback rule. Undefined scores rank below every
// defined one, so an all-unscored set of Accepts falls through to fallback.
func (e *Engine) aggregate(collected []reply) domain.Decision {
	bestAccept := -1
	bestScore := domain.Score{}
	bestNegotiate := -1

	for _, r := range collected {
		switch r.decision.Action {
		case domain.ActionAccept:
			if !r.decision.Score.Defined {
				continue
			}
			if bestAccept == -1 || r.decision.Score.Better(bestScore) ||
				(!bestScore.Better(r.decision.Score) && r.index < bestAccept) {
				bestAccept = r.index
				bestScore = r.decision.Score
			}
		case domain.ActionNegotiate:
			if bestNegotiate == -1 || r.index < bestNegotiate {
				bestNegotiate = r.index
			}
		}
	}

	if bestAccept >= 0 {
		for _, r := range collected {
			if r.index == bestAccept {
				return r.decision
			}
		}
	}
	if bestNegotiate >= 0 {
		for _, r := range collected {
			if r.index == bestNegotiate {
				return r.decision
			}
		}
	}
	return e.fallback()
}

func (e *Engine) fallback() domain.Decision {
	if e.policy.Fallback == config.FallbackAccept {
		return domain.Accept(domain.Score{})
	}
	return domain.Reject(domain.NewReason("composite %q: no acceptable reply within %s",
		e.name, e.policy.Window))
}

// Notify is a no-op: events reach every instance directly through the bus,
// composites included, so forwarding here would double-deliver.
func (e *Engine) Notify(domain.Event) {}

// Shutdown cascades to children in registration order and returns the first
// failure after attempting all of them.
func (e *Engine) Shutdown() error {
	var first error
	for _, c := range e.children {
		if err := c.component.Shutdown(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Window exposes the configured collection window, mainly for callers sizing
// session deadlines.
func (e *Engine) Window() time.Duration { return e.policy.Window }
