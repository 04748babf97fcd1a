package signalsync

import (
	"time"

	"github.com/miicoin/signalsync/internal/poller"
)

// TaskHandle identifies a registered task. The zero value is invalid.
type TaskHandle = poller.Handle

// TaskStatus is a point-in-time view of a task's schedule.
type TaskStatus = poller.TaskStatus

// TaskState is the lifecycle state of a task: idle, fetching or stopped.
type TaskState = poller.State

// Task states. Stopped is terminal.
const (
	StateIdle     = poller.StateIdle
	StateFetching = poller.StateFetching
	StateStopped  = poller.StateStopped
)

// CycleReport describes one completed cycle. It is passed to callbacks
// registered with [WithCycleCallback].
type CycleReport struct {
	// Task is the task name.
	Task string

	// Cycle numbers the task's cycles from 1.
	Cycle uint64

	// Err is nil on success, else a *TransportError, *StatusError or *ParseError.
	Err error

	// StatusCode is the HTTP status, or 0 when no response arrived.
	StatusCode int

	// Latency is the request round-trip time.
	Latency time.Duration

	// StartedAt is when the cycle was dispatched.
	StartedAt time.Time
}

// OK reports whether the cycle rendered.
func (r CycleReport) OK() bool { return r.Err == nil }

// Reason returns the failure text, or "" on success.
func (r CycleReport) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func toCycleReport(r poller.Report) CycleReport {
	return CycleReport{
		Task:       r.Task,
		Cycle:      r.Cycle,
		Err:        r.Outcome.Err,
		StatusCode: r.StatusCode,
		Latency:    r.Latency,
		StartedAt:  r.StartedAt,
	}
}
