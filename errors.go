package signalsync

import "github.com/miicoin/signalsync/internal/poller"

// Cycle failure types. Use errors.As to tell them apart.
type (
	// TransportError reports a connection failure, timeout or body read error.
	TransportError = poller.TransportError

	// StatusError reports a response outside 2xx. Message is the server's
	// "message" field when present, else the HTTP status text.
	StatusError = poller.StatusError

	// ParseError reports a body rejected by the endpoint's parse function.
	ParseError = poller.ParseError
)

// API misuse errors. Use errors.Is; returned errors may wrap these with the
// task name.
var (
	ErrAlreadyStarted = poller.ErrAlreadyStarted
	ErrDuplicateTask  = poller.ErrDuplicateTask
	ErrSinkShared     = poller.ErrSinkShared
	ErrUnknownTask    = poller.ErrUnknownTask
)
