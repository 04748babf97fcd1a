package poller

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError reports a request that never produced a usable response:
// the connection failed, the request timed out, or the body could not be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response whose status code is outside 2xx.
//
// Message carries the server-supplied "message" field when the body has one,
// otherwise the standard status text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// newStatusError builds a StatusError, preferring the server's message.
func newStatusError(code int, serverMessage string) *StatusError {
	msg := serverMessage
	if msg == "" {
		msg = http.StatusText(code)
	}
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", code)
	}
	return &StatusError{Code: code, Message: msg}
}

// ParseError reports a body that the endpoint's parse function rejected.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	// ErrAlreadyStarted is returned by Register once the synchronizer runs.
	ErrAlreadyStarted = errors.New("synchronizer already started")

	// ErrDuplicateTask is returned when a task name is registered twice.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrSinkShared is returned when two tasks would render into the same target.
	ErrSinkShared = errors.New("sink target already owned by another task")

	// ErrUnknownTask is returned for handles the synchronizer did not issue.
	ErrUnknownTask = errors.New("unknown task")
)
