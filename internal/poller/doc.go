// Package poller provides the periodic synchronization engine for signalsync.
//
// This package is internal to signalsync. It issues requests for registered
// tasks on their intervals, classifies each response into an [Outcome] and
// hands successful payloads to the task's render function.
//
// The main components are:
//
//   - [Client]: HTTP [Fetcher] with pooled connections, timeouts and size limits
//   - [Fetch]: one request, classified into transport, status or parse failures
//   - [Synchronizer]: tick-and-check scheduler with an at-most-one-in-flight guard
//   - [TaskInfo]: type-erased description of a task
//
// Users of the signalsync library should not need to interact with this
// package directly.
package poller
