package live

import "errors"

var (
	// ErrNotFound is returned for an unknown session.
	ErrNotFound = errors.New("live: session not found")
	// ErrSessionClosed is returned when a mutation targets a session that has ended.
	ErrSessionClosed = errors.New("live: session closed")
	// ErrPersistence wraps store failures that survived the retry budget.
	ErrPersistence = errors.New("live: persistence failed")
	// ErrStartFailed is returned by Open when the new session could not be recorded.
	ErrStartFailed = errors.New("live: start failed")
)
