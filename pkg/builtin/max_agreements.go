package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/schema"
)

// MaxAgreements limits the number of concurrently running agreements. Slots
// are taken on agreement approval and freed on termination, tracked through
// the event channel. The active set is persisted in the component's reserved
// directory so restarts keep the tally.
type MaxAgreements struct {
	name    string
	workDir string
	logger  *slog.Logger

	mu     sync.Mutex
	limit  int
	active map[string]bool
}

type maxAgreementsConfig struct {
	MaxAgreements int `mapstructure:"max_agreements"`
}

var maxAgreementsSchema = schema.Schema{
	"max_agreements": schema.Int(),
}

const activeFile = "active.json"

// NewMaxAgreements constructs the component and restores any persisted state.
func NewMaxAgreements(spec ports.InstanceSpec) (ports.Component, error) {
	if err := schema.Validate(maxAgreementsSchema, spec.Params); err != nil {
		return nil, configErr(spec.Name, err)
	}
	var cfg maxAgreementsConfig
	if err := mapstructure.Decode(spec.Params, &cfg); err != nil {
		return nil, configErr(spec.Name, err)
	}
	if cfg.MaxAgreements < 0 {
		return nil, configErr(spec.Name, fmt.Errorf("max_agreements must not be negative"))
	}

	c := &MaxAgreements{
		name:    spec.Name,
		workDir: spec.WorkDir,
		logger:  slog.Default().With(slog.String("component", spec.Name)),
		limit:   cfg.MaxAgreements,
		active:  make(map[string]bool),
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *MaxAgreements) restore() error {
	raw, err := os.ReadFile(filepath.Join(c.workDir, activeFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("component %q: restoring active agreements: %w", c.name, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("component %q: restoring active agreements: %w", c.name, err)
	}
	for _, id := range ids {
		c.active[id] = true
	}
	return nil
}

// persist writes the active set. I/O failures stay local to this component:
// they are logged, never propagated to siblings.
func (c *MaxAgreements) persist() {
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raw, err := json.Marshal(ids)
	if err == nil {
		err = os.WriteFile(filepath.Join(c.workDir, activeFile), raw, 0o644)
	}
	if err != nil {
		c.logger.Warn("persisting active agreements failed", slog.String("err", err.Error()))
	}
}

func (c *MaxAgreements) Decide(_ context.Context, proposal *domain.Proposal, _ domain.SessionInfo) (domain.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.active) < c.limit {
		return domain.Accept(domain.Score{}), nil
	}
	return domain.Reject(domain.NewReason(
		"no capacity available, reached agreements limit %d", c.limit)), nil
}

func (c *MaxAgreements) Notify(event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event.Kind {
	case domain.EventAgreementApproved:
		c.active[event.AgreementID] = true
		c.persist()
	case domain.EventAgreementTerminated:
		delete(c.active, event.AgreementID)
		c.persist()
		c.logger.Info("agreement slot freed",
			slog.Int("free_slots", c.limit-len(c.active)))
	}
}

func (c *MaxAgreements) Shutdown() error { return nil }

func (c *MaxAgreements) SubscribedEvents() []domain.EventKind {
	return []domain.EventKind{domain.EventAgreementApproved, domain.EventAgreementTerminated}
}

// Control answers queries about the current slot usage and accepts a new
// limit through {"max_agreements": n}.
func (c *MaxAgreements) Control(_ context.Context, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if raw, ok := params["max_agreements"]; ok {
		limit, ok := asInt(raw)
		if !ok || limit < 0 {
			return nil, fmt.Errorf("component %q: invalid max_agreements %v", c.name, raw)
		}
		c.limit = limit
	}
	return map[string]any{
		"max_agreements": c.limit,
		"active":         len(c.active),
	}, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func configErr(name string, err error) error {
	return fmt.Errorf("%w: component %q: %v", domain.ErrConfigInvalid, name, err)
}
