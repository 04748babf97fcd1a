package signalsync

import (
	"errors"
	"fmt"
)

// gridConfig holds configuration during endpoint grid construction.
type gridConfig struct {
	pathTemplate string
	dimensions   map[string][]string
	endpointOpts []EndpointOption
}

// GridOption configures [NewEndpointGrid].
type GridOption func(*gridConfig) error

// WithPathTemplate sets the path (or absolute URL) template for generated
// endpoints, e.g. "/api/signals?symbol={{.symbol}}".
func WithPathTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("path template required")
		}
		cfg.pathTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the values to expand. Each key is a template field;
// one endpoint is generated per combination.
//
// Returns an error if the map is empty, a dimension has no values, or a value
// is empty.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithEndpointOptions applies opts to every generated endpoint.
func WithEndpointOptions(opts ...EndpointOption) GridOption {
	return func(cfg *gridConfig) error {
		cfg.endpointOpts = append(cfg.endpointOpts, opts...)
		return nil
	}
}
