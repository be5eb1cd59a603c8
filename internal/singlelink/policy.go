// ABOUTME: Connection-selection state machine that keeps exactly one active link per endpoint
// ABOUTME: Driven by address-resolution events and link-state callbacks, independent of gRPC

package singlelink

import (
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/resolver"
)

// State is the aggregate state the policy publishes.
type State int

const (
	// Idle means no connection attempt is in progress; a pick starts one.
	Idle State = iota
	// Connecting means calls wait for the link to become ready.
	Connecting
	// Ready means calls go to the link.
	Ready
	// Failed means calls fail fast until the link recovers or a new resolution arrives.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNoAddresses is reported when resolution yields an empty address list.
var ErrNoAddresses = errors.New("resolver produced no addresses")

// Link is one network connection that may be dialed against several addresses.
type Link interface {
	UpdateAddresses(addrs []resolver.Address)
	Connect()
	Shutdown()
}

// Helper creates links and receives state publications.
type Helper interface {
	// NewLink creates a link; listener receives its connectivity changes.
	NewLink(addrs []resolver.Address, listener func(connectivity.State, error)) (Link, error)
	// Publish announces the aggregate state. link is non-nil when state is Ready
	// or Idle; err is non-nil when state is Failed.
	Publish(state State, link Link, err error)
}

// Policy converges on a single active link. Its methods must not be called
// concurrently; gRPC serializes balancer callbacks, and tests drive it from
// one goroutine.
type Policy struct {
	helper Helper
	logger *slog.Logger

	link  Link
	state State
	err   error
}

// NewPolicy returns a policy with no link.
func NewPolicy(helper Helper, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Policy{helper: helper, logger: logger, state: Idle}
}

// State reports the last published state.
func (p *Policy) State() State { return p.state }

// Err reports the error behind a Failed state.
func (p *Policy) Err() error { return p.err }

// UpdateAddresses handles a successful resolution.
func (p *Policy) UpdateAddresses(addrs []resolver.Address) error {
	if len(addrs) == 0 {
		p.ResolverError(ErrNoAddresses)
		return ErrNoAddresses
	}

	if p.link != nil {
		p.link.UpdateAddresses(addrs)
		if p.state == Failed {
			// A fresh resolution lifts fail-fast; wait for the link again.
			p.publish(Connecting, nil)
			p.link.Connect()
		}
		return nil
	}

	var link Link
	link, err := p.helper.NewLink(addrs, func(s connectivity.State, err error) {
		p.linkStateChanged(link, s, err)
	})
	if err != nil {
		p.publish(Failed, fmt.Errorf("creating link: %w", err))
		return err
	}
	p.link = link
	p.logger.Debug("link created", "addresses", len(addrs))
	p.publish(Connecting, nil)
	link.Connect()
	return nil
}

// ResolverError tears the active link down and fails calls.
func (p *Policy) ResolverError(err error) {
	p.logger.Warn("name resolution failed", "error", err)
	if p.link != nil {
		p.link.Shutdown()
		p.link = nil
	}
	p.publish(Failed, err)
}

// ExitIdle asks the link to connect when the channel leaves idle.
func (p *Policy) ExitIdle() {
	if p.link != nil && p.state == Idle {
		p.link.Connect()
	}
}

// Close shuts the link down. The policy publishes nothing afterwards.
func (p *Policy) Close() {
	if p.link != nil {
		p.link.Shutdown()
		p.link = nil
	}
}

func (p *Policy) linkStateChanged(link Link, s connectivity.State, err error) {
	if link == nil || link != p.link {
		// Stale callback from a link that was already replaced.
		return
	}

	switch s {
	case connectivity.Shutdown:
		return
	case connectivity.Ready:
		p.publish(Ready, nil)
	case connectivity.Connecting:
		if p.state == Failed {
			return
		}
		p.publish(Connecting, nil)
	case connectivity.Idle:
		if p.state == Failed {
			// Keep failing fast but keep trying in the background.
			link.Connect()
			return
		}
		p.publish(Idle, nil)
	case connectivity.TransientFailure:
		if err == nil {
			err = errors.New("link in transient failure")
		}
		p.publish(Failed, err)
	}
}

func (p *Policy) publish(state State, err error) {
	if state != p.state {
		p.logger.Debug("link state", "from", p.state, "to", state)
	}
	p.state = state
	p.err = err
	var link Link
	if state == Ready || state == Idle {
		link = p.link
	}
	p.helper.Publish(state, link, err)
}
