package signalsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Raw is a [ParseFunc] that passes the body through unchanged.
func Raw(body []byte) ([]byte, error) {
	return append([]byte(nil), body...), nil
}

// JSON returns a [ParseFunc] that unmarshals the body into a T.
//
// An empty body is rejected rather than decoded into a zero value.
func JSON[T any]() ParseFunc[T] {
	return func(body []byte) (T, error) {
		var v T
		if len(strings.TrimSpace(string(body))) == 0 {
			return v, errors.New("empty response body")
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return v, err
		}
		return v, nil
	}
}

// JSONPath returns a [ParseFunc] that decodes the value found at a
// dot-separated path, such as "data.signals".
//
// Example:
//
//	// For response: {"status": "success", "signals": [...]}
//	parse := signalsync.JSONPath[[]signals.Signal]("signals")
func JSONPath[T any](path string) ParseFunc[T] {
	parts := strings.Split(path, ".")

	return func(body []byte) (T, error) {
		var zero T

		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return zero, err
		}

		value, ok := walkJSONPath(data, parts)
		if !ok {
			return zero, fmt.Errorf("field %q not found", path)
		}

		// re-encode the subtree so T's own decoding rules apply
		raw, err := json.Marshal(value)
		if err != nil {
			return zero, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, fmt.Errorf("field %q: %w", path, err)
		}
		return v, nil
	}
}

// walkJSONPath walks a decoded JSON structure using dot notation parts.
func walkJSONPath(data any, parts []string) (any, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// RequireField wraps parse so a body whose string field at the dot path is
// present and not equal to want is rejected, with the body's "message" as the
// error text when it has one. The MiiCoin backend answers
// {"status": "error", "message": ...} with HTTP 200 in a few places.
func RequireField[T any](parse ParseFunc[T], field, want string) ParseFunc[T] {
	parts := strings.Split(field, ".")

	return func(body []byte) (T, error) {
		var zero T

		var data any
		if err := json.Unmarshal(body, &data); err == nil {
			if value, ok := walkJSONPath(data, parts); ok {
				if s, isString := value.(string); isString && s != want {
					if msg, ok := walkJSONPath(data, []string{"message"}); ok {
						if m, isString := msg.(string); isString && m != "" {
							return zero, errors.New(m)
						}
					}
					return zero, fmt.Errorf("%s is %q, want %q", field, s, want)
				}
			}
		}
		return parse(body)
	}
}
