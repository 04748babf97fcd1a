package signalsync

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ParseFunc converts a raw response body into a typed payload. Returning an
// error makes the cycle a [Failure]; the sink is not called.
type ParseFunc[T any] func(body []byte) (T, error)

// Endpoint describes one backend resource: where it lives, how to request it
// and how to parse its body.
//
// Endpoint is immutable after creation via [NewEndpoint]. Getters return
// copies of mutable data.
type Endpoint[T any] struct {
	name     string
	path     string
	method   string
	headers  map[string]string
	body     []byte
	timeout  time.Duration
	interval time.Duration
	parse    ParseFunc[T]
}

// Name returns the endpoint's identifier, used as the task name.
func (e Endpoint[T]) Name() string { return e.name }

// Path returns the request path, or the absolute URL when one was given.
func (e Endpoint[T]) Path() string { return e.path }

// Method returns the HTTP method. Defaults to GET.
func (e Endpoint[T]) Method() string { return e.method }

// Headers returns a copy of the custom request headers.
func (e Endpoint[T]) Headers() map[string]string { return copyMap(e.headers) }

// Body returns a copy of the request body, or nil.
func (e Endpoint[T]) Body() []byte {
	if e.body == nil {
		return nil
	}
	return append([]byte(nil), e.body...)
}

// Timeout returns the per-request timeout. Zero means no timeout beyond the
// synchronizer's context.
func (e Endpoint[T]) Timeout() time.Duration { return e.timeout }

// Interval returns the endpoint's preferred cycle interval, or 0 when the
// task or synchronizer default applies.
func (e Endpoint[T]) Interval() time.Duration { return e.interval }

// Parse applies the endpoint's parse function to body.
func (e Endpoint[T]) Parse(body []byte) (T, error) { return e.parse(body) }

// NewEndpoint creates an [Endpoint] named name for path.
//
// path is either an absolute http(s) URL or a path starting with "/" that is
// resolved against the synchronizer's base URL (see [WithBaseURL]). parse is
// required; use [Raw] or [JSON] when no custom parsing is needed.
//
// Example:
//
//	ep, err := signalsync.NewEndpoint("signals", "/api/signals", signals.ParseSignalList,
//	    signalsync.WithTimeout(10*time.Second),
//	)
func NewEndpoint[T any](name, path string, parse ParseFunc[T], opts ...EndpointOption) (Endpoint[T], error) {
	if strings.TrimSpace(name) == "" {
		return Endpoint[T]{}, errors.New("endpoint name cannot be empty")
	}
	if err := validatePath(path); err != nil {
		return Endpoint[T]{}, err
	}
	if parse == nil {
		return Endpoint[T]{}, errors.New("parse function is required")
	}

	cfg := &endpointConfig{
		method:  http.MethodGet,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Endpoint[T]{}, err
		}
	}

	return Endpoint[T]{
		name:     name,
		path:     path,
		method:   cfg.method,
		headers:  cfg.headers,
		body:     cfg.body,
		timeout:  cfg.timeout,
		interval: cfg.interval,
		parse:    parse,
	}, nil
}

// MustEndpoint is like [NewEndpoint] but panics on error. Intended for
// package-level endpoint tables with constant arguments.
func MustEndpoint[T any](name, path string, parse ParseFunc[T], opts ...EndpointOption) Endpoint[T] {
	ep, err := NewEndpoint(name, path, parse, opts...)
	if err != nil {
		panic("signalsync: " + err.Error())
	}
	return ep
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("endpoint path cannot be empty")
	}
	if strings.HasPrefix(path, "/") {
		return nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return errors.New("invalid URL: " + err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("path must start with / or be an absolute http(s) URL")
	}
	return nil
}

// resolveURL joins path onto base. Absolute paths are returned unchanged.
func resolveURL(base, path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return path, nil
	}
	if base == "" {
		return "", errors.New("relative path " + path + " requires a base URL")
	}
	return strings.TrimRight(base, "/") + path, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
