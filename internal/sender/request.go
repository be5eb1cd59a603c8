// ABOUTME: Request submitted by producers and the completion listener contract
// ABOUTME: A request carries either an attempt ceiling or a listener, never both

package sender

import "fmt"

// CompletionListener receives the outcome of a listener request. It runs on
// the completion executor and must not block for long.
type CompletionListener interface {
	OnComplete(Outcome)
}

// ListenerFunc adapts a function to CompletionListener.
type ListenerFunc func(Outcome)

// OnComplete calls f(o).
func (f ListenerFunc) OnComplete(o Outcome) { f(o) }

// Request is one unit of telemetry handed to the sender.
//
// With a Listener, the outcome of the single attempt goes to the listener
// and the transport does not retry. Without one, the request is attempted
// up to MaxAttempts times in total; values below 1 mean one attempt.
type Request struct {
	Payload     any
	MaxAttempts int
	Listener    CompletionListener
}

func (r Request) validate() error {
	if r.Payload == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidRequest)
	}
	if r.Listener != nil && r.MaxAttempts > 0 {
		return ErrInvalidRequest
	}
	return nil
}

func (r Request) attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// label names the payload type for logs.
func label(payload any) string {
	return fmt.Sprintf("%T", payload)
}
