// Package schema validates component parameter maps before construction.
// Declarative trees carry untyped params; each component declares the shape it
// needs so a malformed document fails fast as a config error instead of
// surfacing mid-negotiation.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Type checks one parameter value.
type Type func(value any) error

// Int accepts Go integers and whole floats. YAML and JSON decoders hand
// numeric literals over as float64, so 3.0 counts as 3.
func Int() Type {
	return func(value any) error {
		switch n := value.(type) {
		case int, int8, int16, int32, int64:
			return nil
		case float64:
			if n == float64(int64(n)) {
				return nil
			}
			return fmt.Errorf("expected an integer, got fractional number %v", n)
		default:
			return fmt.Errorf("expected an integer, got %T", value)
		}
	}
}

// Float accepts any numeric value.
func Float() Type {
	return func(value any) error {
		switch value.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return nil
		default:
			return fmt.Errorf("expected a number, got %T", value)
		}
	}
}

// Duration accepts Go duration strings ("5m"), nanosecond integers, and
// time.Duration values.
func Duration() Type {
	return func(value any) error {
		switch n := value.(type) {
		case time.Duration, int, int64:
			return nil
		case string:
			if _, err := time.ParseDuration(n); err != nil {
				return fmt.Errorf("expected a duration, got %q", n)
			}
			return nil
		default:
			return fmt.Errorf("expected a duration, got %T", value)
		}
	}
}

// Schema maps parameter names to their expected types. Every listed parameter
// is required.
type Schema map[string]Type

// Validate checks params against the schema. All failures are reported at
// once so a misconfigured tree gets fixed in one round trip, in parameter
// name order to keep messages stable.
func Validate(s Schema, params map[string]any) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		value, ok := params[name]
		if !ok {
			errs = append(errs, fmt.Errorf("parameter %q is required", name))
			continue
		}
		if err := s[name](value); err != nil {
			errs = append(errs, fmt.Errorf("parameter %q: %v", name, err))
		}
	}
	return errors.Join(errs...)
}
