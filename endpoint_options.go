package signalsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// endpointConfig holds mutable state during endpoint construction.
type endpointConfig struct {
	method   string
	headers  map[string]string
	body     []byte
	timeout  time.Duration
	interval time.Duration
}

// EndpointOption configures an [Endpoint] during construction. Options
// return an error if validation fails.
type EndpointOption func(*endpointConfig) error

// WithMethod sets the HTTP method. GET, POST, PUT and DELETE are accepted.
func WithMethod(method string) EndpointOption {
	return func(cfg *endpointConfig) error {
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, POST, PUT, or DELETE")
		}
	}
}

// WithHeaders adds request headers as key-value pairs.
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) EndpointOption {
	return func(cfg *endpointConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithBody sets a JSON request body, marshalled once at construction.
func WithBody(v any) EndpointOption {
	return func(cfg *endpointConfig) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.New("request body is not JSON-encodable: " + err.Error())
		}
		cfg.body = data
		return nil
	}
}

// WithTimeout bounds each request to this endpoint.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) EndpointOption {
	return func(cfg *endpointConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithInterval sets the endpoint's preferred cycle interval. A [Task]
// interval takes precedence; the synchronizer default applies when neither
// is set.
//
// Note: the interval is measured between cycle starts. A cycle still in
// flight when the next one is due pushes the next one to the following tick.
func WithInterval(d time.Duration) EndpointOption {
	return func(cfg *endpointConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}
