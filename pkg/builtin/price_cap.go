package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/schema"
)

// AttrPrice is the Proposal attribute PriceCap negotiates over.
const AttrPrice = "price"

// PriceCap accepts Proposals priced at or under its cap, scoring cheaper ones
// higher, and counters over-priced ones with the cap itself. Counters carry
// the remaining attributes unchanged.
type PriceCap struct {
	name string

	mu  sync.Mutex
	max float64
}

type priceCapConfig struct {
	MaxPrice float64 `mapstructure:"max_price"`
}

var priceCapSchema = schema.Schema{
	"max_price": schema.Float(),
}

// NewPriceCap constructs the component.
func NewPriceCap(spec ports.InstanceSpec) (ports.Component, error) {
	if err := schema.Validate(priceCapSchema, spec.Params); err != nil {
		return nil, configErr(spec.Name, err)
	}
	var cfg priceCapConfig
	if err := mapstructure.Decode(spec.Params, &cfg); err != nil {
		return nil, configErr(spec.Name, err)
	}
	if cfg.MaxPrice <= 0 {
		return nil, configErr(spec.Name, fmt.Errorf("max_price must be positive"))
	}
	return &PriceCap{name: spec.Name, max: cfg.MaxPrice}, nil
}

func (c *PriceCap) Decide(_ context.Context, proposal *domain.Proposal, _ domain.SessionInfo) (domain.Decision, error) {
	raw, ok := proposal.Attribute(AttrPrice)
	if !ok {
		return domain.Reject(domain.NewReason("proposal has no %q attribute", AttrPrice)), nil
	}
	price, ok := asFloat(raw)
	if !ok || price < 0 {
		return domain.Reject(domain.NewReason("proposal attribute %q is not a valid price", AttrPrice)), nil
	}

	c.mu.Lock()
	max := c.max
	c.mu.Unlock()

	if price <= max {
		score := (max - price) / max
		return domain.Accept(domain.ScoreOf(score)), nil
	}

	attrs := proposal.Clone().Attributes
	attrs[AttrPrice] = max
	counter := proposal.Counter(proposal.Issuer.Opposite(), attrs, proposal.Timestamp)
	return domain.Negotiate(counter), nil
}

func (c *PriceCap) Notify(domain.Event) {}

func (c *PriceCap) Shutdown() error { return nil }

func (c *PriceCap) SubscribedEvents() []domain.EventKind { return nil }

// Control answers {"max_price": x} mutations and always reports the cap.
func (c *PriceCap) Control(_ context.Context, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw, ok := params["max_price"]; ok {
		price, ok := asFloat(raw)
		if !ok || price <= 0 {
			return nil, fmt.Errorf("component %q: invalid max_price %v", c.name, raw)
		}
		c.max = price
	}
	return map[string]any{"max_price": c.max}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
