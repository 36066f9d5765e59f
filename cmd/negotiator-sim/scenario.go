package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridmarket/negotiator/pkg/config"
)

// Scenario is the YAML document the run command consumes.
type Scenario struct {
	// Tick is the virtual-clock step. Zero uses the framework default.
	Tick config.Duration `yaml:"tick,omitempty"`

	// Session bounds every negotiation in the scenario.
	Session SessionBudget `yaml:"session"`

	// Attrs seeds the initial proposal each requestor opens with.
	Attrs map[string]any `yaml:"attrs"`

	Providers  []Party `yaml:"providers"`
	Requestors []Party `yaml:"requestors"`
}

// SessionBudget mirrors session.Config in document form.
type SessionBudget struct {
	MaxRounds int             `yaml:"max_rounds"`
	Timeout   config.Duration `yaml:"timeout"`
}

// Party names one side's component tree.
type Party struct {
	Name string      `yaml:"name"`
	Tree config.Tree `yaml:"tree"`
}

// LoadScenario parses and sanity-checks one scenario file. Tree structure is
// validated later by the factory; this only checks the scenario shape.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if len(s.Providers) == 0 || len(s.Requestors) == 0 {
		return nil, fmt.Errorf("scenario needs at least one provider and one requestor")
	}
	if s.Session.Timeout <= 0 {
		return nil, fmt.Errorf("scenario session timeout must be positive")
	}
	if s.Session.MaxRounds <= 0 {
		return nil, fmt.Errorf("scenario session max_rounds must be positive")
	}
	return &s, nil
}
