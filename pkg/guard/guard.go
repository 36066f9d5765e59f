// Package guard wraps every cross-boundary component call so a fault inside
// loaded code cannot corrupt host state. A panicking component is permanently
// replaced with a Reject-only stub; the cause is logged once at trip time.
// Static and dynamically loaded components get the same treatment, which keeps
// them indistinguishable to the rest of the system.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// Component guards one wrapped instance.
type Component struct {
	name    string
	inner   ports.Component
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger
	tripped atomic.Bool
}

// Wrap builds a guarded view of inner. A zero timeout disables the per-call
// limit, leaving the caller's context as the only bound.
func Wrap(name string, inner ports.Component, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Component {
	return &Component{
		name:    name,
		inner:   inner,
		clock:   clk,
		timeout: timeout,
		logger:  logger,
	}
}

// Name returns the instance name the component was registered under.
func (g *Component) Name() string { return g.name }

// Tripped reports whether the component has been replaced by the Reject stub.
func (g *Component) Tripped() bool { return g.tripped.Load() }

func (g *Component) trip(op string, cause any) {
	if g.tripped.CompareAndSwap(false, true) {
		g.logger.Error("component disabled after fault",
			slog.String("component", g.name),
			slog.String("op", op),
			slog.Any("cause", cause))
	}
}

func (g *Component) stubDecision() domain.Decision {
	return domain.Reject(domain.NewReason("component %q disabled after fault", g.name).AsFinal())
}

type decideResult struct {
	decision domain.Decision
	err      error
}

// Decide forwards to the wrapped component under panic containment and the
// per-call timeout. A panic or an invalid return trips the stub; an error
// return is contained into a non-final Reject; a timeout surfaces as
// DecisionTimeout so the caller can treat it as "no vote".
func (g *Component) Decide(ctx context.Context, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error) {
	if g.tripped.Load() {
		return g.stubDecision(), nil
	}

	results := make(chan decideResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.trip("decide", r)
				results <- decideResult{decision: g.stubDecision()}
			}
		}()
		d, err := g.inner.Decide(ctx, proposal, info)
		results <- decideResult{decision: d, err: err}
	}()

	var timerC <-chan time.Time
	if g.timeout > 0 {
		timer := g.clock.Timer(g.timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case res := <-results:
		return g.checkResult(res)
	case <-timerC:
		return domain.Decision{}, fmt.Errorf("%w: component %q exceeded %s",
			domain.ErrDecisionTimeout, g.name, g.timeout)
	case <-ctx.Done():
		return domain.Decision{}, ctx.Err()
	}
}

func (g *Component) checkResult(res decideResult) (domain.Decision, error) {
	if res.err != nil {
		g.logger.Warn("component decide failed",
			slog.String("component", g.name),
			slog.String("err", res.err.Error()))
		return domain.Reject(domain.NewReason("component %q failed: %v", g.name, res.err)), nil
	}
	switch res.decision.Action {
	case domain.ActionAccept, domain.ActionReject:
	case domain.ActionNegotiate:
		if res.decision.Counter == nil {
			g.trip("decide", "negotiate decision without counter proposal")
			return g.stubDecision(), nil
		}
	default:
		g.trip("decide", fmt.Sprintf("invalid decision action %q", res.decision.Action))
		return g.stubDecision(), nil
	}
	return res.decision, nil
}

// Notify forwards the event under panic containment. Events to a tripped
// component are dropped.
func (g *Component) Notify(event domain.Event) {
	if g.tripped.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.trip("notify", r)
		}
	}()
	g.inner.Notify(event)
}

// Shutdown forwards to the wrapped component, containing panics.
func (g *Component) Shutdown() (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.trip("shutdown", r)
			err = fmt.Errorf("component %q panicked during shutdown: %v", g.name, r)
		}
	}()
	return g.inner.Shutdown()
}

// Control forwards addressed commands when the wrapped component supports
// them. The per-command timeout is enforced by the event bus, not here.
func (g *Component) Control(ctx context.Context, params map[string]any) (result map[string]any, err error) {
	if g.tripped.Load() {
		return nil, fmt.Errorf("%w: component %q disabled after fault", domain.ErrNotControllable, g.name)
	}
	controllable, ok := g.inner.(ports.Controllable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotControllable, g.name)
	}
	defer func() {
		if r := recover(); r != nil {
			g.trip("control", r)
			err = fmt.Errorf("component %q panicked during control: %v", g.name, r)
		}
	}()
	return controllable.Control(ctx, params)
}

// SubscribedEvents forwards the wrapped component's subscription narrowing.
func (g *Component) SubscribedEvents() []domain.EventKind {
	if sub, ok := g.inner.(ports.Subscriber); ok {
		return sub.SubscribedEvents()
	}
	return domain.AllEventKinds()
}
