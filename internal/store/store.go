package store

import (
	"encoding/json"
	"time"
)

// Snapshot is the stored view of one sync task: the last rendered payload
// plus the health of its recent cycles.
//
// Snapshot is optimized for JSON serialization (used by the REST API, SSE
// and WebSocket streams) and is decoupled from the poller's internal types.
type Snapshot struct {
	// Task is the task name and the store key.
	Task string `json:"task"`

	// URL is the endpoint the task polls.
	URL string `json:"url"`

	// Payload is the last successfully rendered payload. It survives failed
	// cycles so the dashboard keeps showing stale data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// RenderedAt is when Payload was last replaced. Nil until the first render.
	RenderedAt *time.Time `json:"rendered_at"`

	// CheckedAt is when the last cycle (successful or not) started.
	CheckedAt time.Time `json:"checked_at"`

	// ResponseTimeMs is the latency of the last cycle in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// Cycles counts completed cycles.
	Cycles uint64 `json:"cycles"`

	// ConsecutiveFailures resets to zero on every success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Error is the reason of the last cycle when it failed, nil otherwise.
	Error *string `json:"error"`
}

// Store defines storage and subscription for task snapshots.
//
// Implementations must be safe for concurrent access. Subscribers receive
// every changed snapshot.
type Store interface {
	// Apply mutates the snapshot stored under task (creating it if needed)
	// and notifies subscribers with the result.
	Apply(task string, fn func(*Snapshot))

	// Get returns the snapshot for task.
	Get(task string) (Snapshot, bool)

	// GetAll returns all snapshots sorted by task name.
	GetAll() []Snapshot

	// Subscribe returns a buffered channel of snapshot updates.
	// Slow consumers may miss updates. Callers must Unsubscribe when done.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
