// Package signalsync keeps display targets in step with a JSON backend by
// polling its endpoints on fixed intervals.
//
// It was extracted from the MiiCoin trading dashboard, which refreshed a
// signals list and a bot-status panel every 30 seconds. The core contract is
// small: every task runs once immediately and then on its interval, a task
// never has two requests in flight, and a failed cycle is logged and leaves
// the last rendered payload untouched.
//
// # Quick Start
//
//	s, err := signalsync.New(signalsync.WithBaseURL("http://localhost:5000"))
//	if err != nil {
//	    return err
//	}
//
//	ep, err := signalsync.NewEndpoint("signals", "/api/signals", signals.ParseSignalList)
//	if err != nil {
//	    return err
//	}
//	_, err = signalsync.Register(s, signalsync.Task[signals.SignalList]{
//	    Endpoint: ep,
//	    Sink:     signalsync.SinkFunc[signals.SignalList](func(l signals.SignalList) { ... }),
//	})
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	s.Run(ctx) // blocks until ctx is cancelled
//
// # Endpoints and parsing
//
// An [Endpoint] carries a [ParseFunc] that turns the body into a typed
// payload. Built-in parse helpers:
//
//   - [Raw]: the body bytes unchanged
//   - [JSON]: unmarshal into T
//   - [JSONPath]: unmarshal the value at a dot path into T
//   - [RequireField]: reject bodies whose status-like field has the wrong value
//
// [NewEndpointGrid] expands a path template over dimension values, e.g. one
// signals endpoint per trading pair.
//
// # Results and errors
//
// A cycle produces a [Result]: Success(payload) or Failure(err). Failures
// are a [TransportError], [StatusError] or [ParseError]; for a StatusError
// the reason is the server's "message" field when present. Failures never
// stop the schedule.
//
// # Sinks
//
// A [Sink] renders payloads. Sinks that implement [Targeted] own their
// target, and two tasks rendering to the same target is rejected at
// registration. [StoreSink] feeds the built-in dashboard enabled with
// [WithDashboard]; internal/sink has console and Redis sinks used by the CLI.
//
// # Architecture
//
//   - internal/poller: HTTP fetcher and the scheduling engine
//   - internal/store: in-memory task snapshots with pub/sub
//   - internal/server: dashboard, REST, SSE and WebSocket
//   - internal/authclient: session login against the backend's /auth routes
//   - dashboard: embedded web UI assets
package signalsync
