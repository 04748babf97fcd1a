package signalsync

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewEndpointGrid creates one endpoint per combination of dimension values.
//
// The path template uses text/template syntax with the dimension keys as
// fields. Values are query-escaped before interpolation and a template that
// references a missing key fails. Endpoint names have the form
// "base (v1/v2)", with values ordered by sorted key.
//
// Example:
//
//	eps, err := signalsync.NewEndpointGrid("signals", signals.ParseSignalList,
//	    signalsync.WithPathTemplate("/api/signals?symbol={{.symbol}}"),
//	    signalsync.WithDimensions(map[string][]string{
//	        "symbol": {"BTC/USDT", "ETH/USDT"},
//	    }),
//	)
//	// "signals (BTC/USDT)" -> /api/signals?symbol=BTC%2FUSDT
func NewEndpointGrid[T any](baseName string, parse ParseFunc[T], opts ...GridOption) ([]Endpoint[T], error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.pathTemplate == "" {
		return nil, errors.New("path template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("path").Option("missingkey=error").Parse(cfg.pathTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid path template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	endpoints := make([]Endpoint[T], 0, len(combinations))
	for _, combo := range combinations {
		var path strings.Builder
		if err := tmpl.Execute(&path, escapeValues(combo)); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := gridName(baseName, combo)
		ep, err := NewEndpoint(name, path.String(), parse, cfg.endpointOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create endpoint %q: %w", name, err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// cartesianProduct returns every combination of dimension values. Keys are
// visited in sorted order and values keep their slice order, so
// {"x": [a b], "y": [1 2]} yields x=a,y=1; x=a,y=2; x=b,y=1; x=b,y=2.
func cartesianProduct(dims map[string][]string) []map[string]string {
	keys := sortedKeys(dims)
	if len(keys) == 0 {
		return nil
	}

	total := 1
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)
	for n := 0; n < total; n++ {
		// decode n as a mixed-radix number, rightmost key fastest
		combo := make(map[string]string, len(keys))
		rem := n
		for i := len(keys) - 1; i >= 0; i-- {
			vals := dims[keys[i]]
			combo[keys[i]] = vals[rem%len(vals)]
			rem /= len(vals)
		}
		result = append(result, combo)
	}
	return result
}

func escapeValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = url.QueryEscape(v)
	}
	return out
}

func gridName(base string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(parts, "/"))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
