package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/schema"
)

// AttrExpiration is the Proposal attribute LimitExpiration inspects: a unix
// millisecond timestamp after which the prospective agreement expires.
const AttrExpiration = "expiration"

// LimitExpiration rejects Proposals whose expiration falls outside the
// configured bounds, measured from the Proposal's own issue time so the check
// is reproducible under a virtual clock.
type LimitExpiration struct {
	name string
	min  time.Duration
	max  time.Duration
}

type limitExpirationConfig struct {
	MinExpiration time.Duration `mapstructure:"min_expiration"`
	MaxExpiration time.Duration `mapstructure:"max_expiration"`
}

var limitExpirationSchema = schema.Schema{
	"min_expiration": schema.Duration(),
	"max_expiration": schema.Duration(),
}

// NewLimitExpiration constructs the component. Both bounds are required and
// may be given as Go duration strings ("5m") or nanosecond integers.
func NewLimitExpiration(spec ports.InstanceSpec) (ports.Component, error) {
	if err := schema.Validate(limitExpirationSchema, spec.Params); err != nil {
		return nil, configErr(spec.Name, err)
	}
	var cfg limitExpirationConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &cfg,
	})
	if err != nil {
		return nil, configErr(spec.Name, err)
	}
	if err := decoder.Decode(spec.Params); err != nil {
		return nil, configErr(spec.Name, err)
	}
	if cfg.MaxExpiration <= 0 || cfg.MinExpiration < 0 || cfg.MaxExpiration < cfg.MinExpiration {
		return nil, configErr(spec.Name, fmt.Errorf(
			"expiration bounds invalid: min=%s max=%s", cfg.MinExpiration, cfg.MaxExpiration))
	}
	return &LimitExpiration{name: spec.Name, min: cfg.MinExpiration, max: cfg.MaxExpiration}, nil
}

func (c *LimitExpiration) Decide(_ context.Context, proposal *domain.Proposal, _ domain.SessionInfo) (domain.Decision, error) {
	raw, ok := proposal.Attribute(AttrExpiration)
	if !ok {
		return domain.Reject(domain.NewReason("proposal has no %q attribute", AttrExpiration)), nil
	}
	millis, ok := asInt64(raw)
	if !ok {
		return domain.Reject(domain.NewReason("proposal attribute %q is not a timestamp", AttrExpiration)), nil
	}

	expiration := time.UnixMilli(millis)
	earliest := proposal.Timestamp.Add(c.min)
	latest := proposal.Timestamp.Add(c.max)
	if expiration.Before(earliest) || expiration.After(latest) {
		return domain.Reject(domain.NewReason(
			"proposal expires at %s, outside the accepted window [%s, %s]",
			expiration.Format(time.RFC3339), c.min, c.max)), nil
	}
	return domain.Accept(domain.Score{}), nil
}

func (c *LimitExpiration) Notify(domain.Event) {}

func (c *LimitExpiration) Shutdown() error { return nil }

func (c *LimitExpiration) SubscribedEvents() []domain.EventKind { return nil }

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
