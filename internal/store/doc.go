// Package store keeps the latest snapshot of every sync task.
//
// This package is internal to signalsync. The store backs the dashboard
// server: the store sink writes rendered payloads into it, the cycle observer
// records cycle health, and the server streams changes to browsers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Stored view of one task
package store
