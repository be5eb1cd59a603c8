// ABOUTME: Error taxonomy of the data sender
// ABOUTME: Sentinels for queue admission and typed errors for per-call failures

package sender

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when the dispatch queue is at capacity. The
	// request was never admitted, so no retry is owed.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrStopped is returned once the sender or queue has been stopped.
	ErrStopped = errors.New("sender stopped")

	// ErrRetryExhausted marks an envelope dropped after its last attempt.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnsupportedMessage is returned by the router for a wire message it
	// has no remote method for.
	ErrUnsupportedMessage = errors.New("unsupported wire message")

	// ErrInvalidRequest is returned for a request that carries both a
	// listener and an attempt ceiling.
	ErrInvalidRequest = errors.New("request must carry either MaxAttempts or Listener, not both")
)

// ConversionError reports a payload with no wire mapping. It is fatal for
// the request: the same payload would fail identically on retry.
type ConversionError struct {
	Type string
	Err  error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no wire mapping for %s", e.Type)
	}
	return fmt.Sprintf("converting %s: %v", e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// TransportError wraps a failure of the call itself.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError reports a collector that received the message and
// answered with success=false.
type ApplicationError struct {
	Method  string
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: collector rejected: %s", e.Method, e.Message)
}

// MalformedResponseError reports response bytes that do not decode into a
// result.
type MalformedResponseError struct {
	Method string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Method, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
