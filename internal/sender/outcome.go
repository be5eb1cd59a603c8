// ABOUTME: Completion outcome of one call and its classification from the raw response
// ABOUTME: Outcome is the single value the retry decision consumes

package sender

import (
	"fmt"

	"github.com/2389/coven-transport/internal/wire"
)

// OutcomeKind classifies how a call completed.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	TransportFailure
	ApplicationFailure
	MalformedResponse
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case TransportFailure:
		return "transport_failure"
	case ApplicationFailure:
		return "application_failure"
	case MalformedResponse:
		return "malformed_response"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one attempt. Result is set for Success and
// ApplicationFailure; Err is set for every failure kind.
type Outcome struct {
	Kind   OutcomeKind
	Method string
	Result *wire.Result
	Err    error
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Kind == Success }

// classify turns the raw return of Method.Invoke into an Outcome. A call is
// a success only if the transport succeeded and the collector reported
// success.
func classify(method string, raw *wire.RawResult, callErr error) Outcome {
	if callErr != nil {
		return Outcome{
			Kind:   TransportFailure,
			Method: method,
			Err:    &TransportError{Method: method, Err: callErr},
		}
	}

	res, err := raw.Decode()
	if err != nil {
		return Outcome{
			Kind:   MalformedResponse,
			Method: method,
			Err:    &MalformedResponseError{Method: method, Err: err},
		}
	}

	if !res.Success {
		return Outcome{
			Kind:   ApplicationFailure,
			Method: method,
			Result: res,
			Err:    &ApplicationError{Method: method, Message: res.Message},
		}
	}
	return Outcome{Kind: Success, Method: method, Result: res}
}
