package signalsync

import (
	"encoding/json"

	"github.com/miicoin/signalsync/internal/store"
)

// StoreSink returns a [Sink] that publishes payloads to the dashboard of s
// under task. It owns the target "store:<task>".
//
// Payloads are JSON-encoded; a payload that cannot be encoded is logged and
// the previous one is kept.
func StoreSink[T any](s *Synchronizer, task string) Sink[T] {
	return storeSink[T]{s: s, task: task}
}

type storeSink[T any] struct {
	s    *Synchronizer
	task string
}

func (k storeSink[T]) Target() string { return "store:" + k.task }

func (k storeSink[T]) Render(payload T) {
	data, err := json.Marshal(payload)
	if err != nil {
		k.s.logger.Warn("store sink: payload not encodable", "task", k.task, "error", err)
		return
	}

	now := k.s.clock.Now()
	k.s.store.Apply(k.task, func(snap *store.Snapshot) {
		snap.Payload = data
		snap.RenderedAt = &now
	})
}
