package bridge

import (
	"errors"
	"fmt"
)

// Standard errors returned by the bridge.
var (
	// ErrNotRunning indicates a request was attempted while the analyzer
	// process is not running.
	ErrNotRunning = errors.New("analyzer not running")

	// ErrAlreadyRunning indicates Start was called on a running bridge.
	ErrAlreadyRunning = errors.New("analyzer already running")

	// ErrShutdown indicates the bridge was deliberately stopped while the
	// request was outstanding.
	ErrShutdown = errors.New("bridge shut down")

	// ErrTimeout indicates no response arrived within the request budget.
	ErrTimeout = errors.New("analyzer request timed out")

	// ErrCrashed indicates the analyzer process exited while requests were
	// outstanding.
	ErrCrashed = errors.New("analyzer process crashed")

	// ErrMalformedResponse indicates a response did not match the expected
	// shape for its method. Facade methods normalize this to an empty
	// result rather than surfacing it to callers.
	ErrMalformedResponse = errors.New("malformed response from analyzer")

	// ErrDenylisted indicates the input matched the known-crashing denylist
	// and was never sent to the analyzer.
	ErrDenylisted = errors.New("input denylisted")
)

// SpawnError indicates the analyzer executable could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProtocolError is the flat error shape emitted by the analyzer itself,
// e.g. a compilation error in the user's file. It is meaningful content,
// not an infrastructure failure, and is surfaced to callers as-is.
type ProtocolError struct {
	Kind string `json:"kind"`
	Msg  string `json:"msg"`
	Line int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Msg, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}
