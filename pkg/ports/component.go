package ports

import (
	"context"

	"github.com/gridmarket/negotiator/pkg/domain"
)

// Component is a pluggable decision unit. Implementations evaluate Proposals
// and emit Decisions; leaves and composites are indistinguishable to callers.
//
// Decide must return within the host-imposed per-call timeout carried by ctx,
// or the caller treats the component as non-responsive for that round. A
// component may read and write files under its reserved directory during
// Decide.
//
// Notify is fire-and-forget: it must not block for long and has no way to
// influence the decision path.
type Component interface {
	Decide(ctx context.Context, proposal *domain.Proposal, info domain.SessionInfo) (domain.Decision, error)
	Notify(event domain.Event)
	Shutdown() error
}

// Controllable is implemented by components that answer addressed
// query/mutate control commands.
type Controllable interface {
	Control(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Subscriber narrows the event kinds an instance wants. Components that do not
// implement it receive every kind.
type Subscriber interface {
	SubscribedEvents() []domain.EventKind
}
