package signalsync

import (
	"time"
)

// Sink consumes successful payloads and updates a display target.
//
// Render is called from the cycle goroutine; it must not block for long and
// must not panic. A panicking sink is recovered and logged with a
// correlation ID, and the cycle still completes.
//
// Render must not call [Synchronizer.StopTask] or [Synchronizer.Stop]; both
// wait for the render to return and would deadlock.
type Sink[T any] interface {
	Render(payload T)
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc[T any] func(payload T)

// Render calls f(payload).
func (f SinkFunc[T]) Render(payload T) { f(payload) }

// Targeted is implemented by sinks that write to a named display target.
// A target may be owned by one task only; [Register] rejects a second task
// rendering to the same target with [ErrSinkShared].
type Targeted interface {
	Target() string
}

// NamedSink wraps fn in a [Sink] that owns target.
func NamedSink[T any](target string, fn func(T)) Sink[T] {
	return namedSink[T]{target: target, fn: fn}
}

type namedSink[T any] struct {
	target string
	fn     func(T)
}

func (n namedSink[T]) Render(payload T) { n.fn(payload) }
func (n namedSink[T]) Target() string   { return n.target }

// MultiSink renders every payload to each sink in order. Its targets are the
// union of the targets of sinks that implement [Targeted] (or are
// themselves MultiSinks).
func MultiSink[T any](sinks ...Sink[T]) Sink[T] {
	return multiSink[T](append([]Sink[T](nil), sinks...))
}

type multiSink[T any] []Sink[T]

func (m multiSink[T]) Render(payload T) {
	for _, s := range m {
		s.Render(payload)
	}
}

func (m multiSink[T]) Targets() []string {
	var out []string
	for _, s := range m {
		out = append(out, targetsOf(s)...)
	}
	return out
}

// targetsOf returns the display targets a sink declares.
func targetsOf(s any) []string {
	switch v := s.(type) {
	case interface{ Targets() []string }:
		return v.Targets()
	case Targeted:
		if t := v.Target(); t != "" {
			return []string{t}
		}
	}
	return nil
}

// Task pairs an [Endpoint] with the [Sink] that renders its payloads.
//
// Interval, when zero, falls back to the endpoint's interval and then to the
// synchronizer default (see [WithDefaultInterval]).
type Task[T any] struct {
	Endpoint Endpoint[T]
	Sink     Sink[T]
	Interval time.Duration
}

// Result is the outcome of one cycle: Success(payload) or Failure(err).
type Result[T any] struct {
	// Payload is the parsed body. Zero unless OK.
	Payload T

	// Err is a *TransportError, *StatusError or *ParseError on failure.
	Err error
}

// Success returns a successful [Result].
func Success[T any](payload T) Result[T] {
	return Result[T]{Payload: payload}
}

// Failure returns a failed [Result].
func Failure[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// OK reports whether the result carries a payload.
func (r Result[T]) OK() bool { return r.Err == nil }

// Reason returns the failure text, or "" on success. For a *StatusError it
// is the server's message when the body carried one.
func (r Result[T]) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
