// ABOUTME: Observation hooks the sender reports through
// ABOUTME: internal/metrics provides the prometheus implementation

package sender

import "time"

// DropReason says why a request left the sender without success.
type DropReason string

const (
	DropQueueFull   DropReason = "queue_full"
	DropStopped     DropReason = "stopped"
	DropInvalid     DropReason = "invalid"
	DropConversion  DropReason = "conversion"
	DropUnsupported DropReason = "unsupported"
	DropExhausted   DropReason = "exhausted"
	DropMalformed   DropReason = "malformed"
)

// Metrics receives sender events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Accepted()
	Dropped(reason DropReason)
	CallCompleted(method string, kind OutcomeKind, elapsed time.Duration)
	RetryScheduled(method string)
}

type nopMetrics struct{}

func (nopMetrics) Accepted()                                        {}
func (nopMetrics) Dropped(DropReason)                               {}
func (nopMetrics) CallCompleted(string, OutcomeKind, time.Duration) {}
func (nopMetrics) RetryScheduled(string)                            {}
