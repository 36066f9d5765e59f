package builtin

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// AcceptAll accepts every incoming Proposal. An optional "score" parameter
// attaches a fixed Score to each acceptance; without it the Score stays
// undefined.
type AcceptAll struct {
	name  string
	score domain.Score
}

type acceptAllConfig struct {
	Score *float64 `mapstructure:"score"`
}

// NewAcceptAll constructs the component.
func NewAcceptAll(spec ports.InstanceSpec) (ports.Component, error) {
	var cfg acceptAllConfig
	if err := mapstructure.Decode(spec.Params, &cfg); err != nil {
		return nil, configErr(spec.Name, err)
	}
	c := &AcceptAll{name: spec.Name}
	if cfg.Score != nil {
		c.score = domain.ScoreOf(*cfg.Score)
	}
	return c, nil
}

func (c *AcceptAll) Decide(context.Context, *domain.Proposal, domain.SessionInfo) (domain.Decision, error) {
	return domain.Accept(c.score), nil
}

func (c *AcceptAll) Notify(domain.Event) {}

func (c *AcceptAll) Shutdown() error { return nil }

// SubscribedEvents: none; the component is stateless.
func (c *AcceptAll) SubscribedEvents() []domain.EventKind { return nil }
