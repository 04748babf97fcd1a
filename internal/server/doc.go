// Package server provides the HTTP server for the signalsync dashboard.
//
// The server reads task snapshots from a [store.Store] and exposes them as:
//
//   - Dashboard: the embedded HTML page at "/"
//   - REST API: "/api/tasks" and "/api/tasks/{name}"
//   - Server-Sent Events: live snapshot changes at "/api/sse"
//   - WebSocket: the same stream at "/api/ws"
//
// The server stops via context cancellation, with a 5-second grace period
// for in-flight requests.
package server
