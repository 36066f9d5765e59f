package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// ("500ms", "1h30m") as well as integer nanoseconds.
type Duration time.Duration

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML lets documents write window and call_timeout as duration
// strings while the in-memory policy keeps standard durations.
func (p *CompositePolicy) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Window      Duration `yaml:"window"`
		CallTimeout Duration `yaml:"call_timeout"`
		Fallback    Fallback `yaml:"fallback"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	p.Window = aux.Window.Std()
	p.CallTimeout = aux.CallTimeout.Std()
	p.Fallback = aux.Fallback
	return nil
}
