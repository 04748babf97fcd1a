package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParseFunc turns a raw response body into a payload.
type ParseFunc func(body []byte) (any, error)

// RenderFunc hands a parsed payload to a display target.
type RenderFunc func(payload any)

// TaskInfo contains everything the synchronizer needs to run one task.
//
// This is the poller-internal representation, decoupled from the typed
// signalsync.Task so the engine can hold tasks of any payload type.
type TaskInfo struct {
	// Name identifies the task in logs, handles and the store.
	Name string

	// Targets names the display targets the sink writes to. Each target may
	// be owned by one task only. Empty means ownership is not checked.
	Targets []string

	// Request is issued on every cycle.
	Request Request

	// Interval is the time between cycle starts. Must be positive.
	Interval time.Duration

	// Parse converts the body. Required.
	Parse ParseFunc

	// Render receives successful payloads. Required. It must not call
	// StopTask or Stop on the owning synchronizer; both wait for it.
	Render RenderFunc
}

// Outcome is the result of one cycle: either a payload or an error.
//
// Exactly one of the two is meaningful; check [Outcome.OK] before using
// Payload.
type Outcome struct {
	Payload any
	Err     error
}

// Success wraps a parsed payload.
func Success(payload any) Outcome {
	return Outcome{Payload: payload}
}

// Failure wraps a cycle error.
func Failure(err error) Outcome {
	return Outcome{Err: err}
}

// OK reports whether the outcome carries a payload.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Reason returns the failure text, or "" for a success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Fetch issues the task's request once and classifies the response.
//
// Transport problems become *TransportError, non-2xx statuses become
// *StatusError and rejected bodies become *ParseError. A panicking fetcher
// is recovered into a *TransportError and a panicking parse function into a
// *ParseError, both carrying a correlation ID. The panic is reported through
// onPanic, with its stage ("fetch" or "parse"), when onPanic is non-nil.
func Fetch(ctx context.Context, f Fetcher, info TaskInfo, onPanic func(stage, correlationID string, recovered any)) (Outcome, Response) {
	resp := safeFetch(ctx, f, info.Request, onPanic)
	if resp.Error != nil {
		return Failure(resp.Error), resp
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure(newStatusError(resp.StatusCode, serverMessage(resp.Body))), resp
	}

	payload, err := safeParse(info.Parse, resp.Body, onPanic)
	if err != nil {
		return Failure(&ParseError{Err: err}), resp
	}
	return Success(payload), resp
}

// serverMessage pulls the "message" field out of a JSON error body.
func serverMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Message
}

// safeFetch calls the fetcher with panic recovery.
func safeFetch(ctx context.Context, f Fetcher, req Request, onPanic func(string, string, any)) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			if onPanic != nil {
				onPanic("fetch", correlationID, r)
			}
			resp = Response{Error: &TransportError{
				Op:  "fetch panic",
				Err: fmt.Errorf("%v (correlation_id: %s)", r, correlationID),
			}}
		}
	}()
	return f.Fetch(ctx, req)
}

// safeParse calls parse with panic recovery.
func safeParse(parse ParseFunc, body []byte, onPanic func(string, string, any)) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			if onPanic != nil {
				onPanic("parse", correlationID, r)
			}
			payload = nil
			err = fmt.Errorf("parse panic (correlation_id: %s)", correlationID)
		}
	}()
	return parse(body)
}
