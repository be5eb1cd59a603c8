// ABOUTME: gRPC balancer adapter that runs the single-link Policy inside a ClientConn
// ABOUTME: Registered under the name coven_single_link and selected through service config

package singlelink

import (
	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/balancer/base"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/status"
)

// Name is the balancer name used in service config.
const Name = "coven_single_link"

// ServiceConfig selects this balancer for a channel.
const ServiceConfig = `{"loadBalancingConfig":[{"` + Name + `":{}}]}`

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn, _ balancer.BuildOptions) balancer.Balancer {
	b := &grpcBalancer{cc: cc}
	b.policy = NewPolicy(b, nil)
	return b
}

// grpcBalancer bridges balancer.Balancer calls onto the Policy and
// implements Helper with SubConns.
type grpcBalancer struct {
	cc     balancer.ClientConn
	policy *Policy
}

func (b *grpcBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	if err := b.policy.UpdateAddresses(addressesOf(s.ResolverState)); err != nil {
		return balancer.ErrBadResolverState
	}
	return nil
}

func (b *grpcBalancer) ResolverError(err error) {
	b.policy.ResolverError(err)
}

// UpdateSubConnState is unused; SubConns report through their StateListener.
func (b *grpcBalancer) UpdateSubConnState(balancer.SubConn, balancer.SubConnState) {}

func (b *grpcBalancer) ExitIdle() { b.policy.ExitIdle() }

func (b *grpcBalancer) Close() { b.policy.Close() }

func (b *grpcBalancer) NewLink(addrs []resolver.Address, listener func(connectivity.State, error)) (Link, error) {
	sc, err := b.cc.NewSubConn(addrs, balancer.NewSubConnOptions{
		StateListener: func(s balancer.SubConnState) {
			listener(s.ConnectivityState, s.ConnectionError)
		},
	})
	if err != nil {
		return nil, err
	}
	return &subConnLink{sc: sc}, nil
}

func (b *grpcBalancer) Publish(state State, link Link, err error) {
	var (
		cs     connectivity.State
		picker balancer.Picker
	)
	switch state {
	case Ready:
		cs = connectivity.Ready
		picker = &readyPicker{result: balancer.PickResult{SubConn: link.(*subConnLink).sc}}
	case Idle:
		cs = connectivity.Idle
		picker = &idlePicker{link: link}
	case Failed:
		cs = connectivity.TransientFailure
		picker = base.NewErrPicker(status.Errorf(codes.Unavailable, "collector link failed: %v", err))
	default:
		cs = connectivity.Connecting
		picker = base.NewErrPicker(balancer.ErrNoSubConnAvailable)
	}
	b.cc.UpdateState(balancer.State{ConnectivityState: cs, Picker: picker})
}

type subConnLink struct {
	sc balancer.SubConn
}

func (l *subConnLink) UpdateAddresses(addrs []resolver.Address) {
	//nolint:staticcheck // in-place update keeps the established transport alive
	l.sc.UpdateAddresses(addrs)
}

func (l *subConnLink) Connect()  { l.sc.Connect() }
func (l *subConnLink) Shutdown() { l.sc.Shutdown() }

// addressesOf flattens endpoints into one candidate list, falling back to
// the legacy Addresses field for resolvers that still fill it.
func addressesOf(s resolver.State) []resolver.Address {
	if len(s.Endpoints) == 0 {
		return s.Addresses
	}
	var addrs []resolver.Address
	for _, ep := range s.Endpoints {
		addrs = append(addrs, ep.Addresses...)
	}
	return addrs
}

type readyPicker struct {
	result balancer.PickResult
}

func (p *readyPicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	return p.result, nil
}

// idlePicker kicks the link and queues the pick until a new picker arrives.
type idlePicker struct {
	link Link
}

func (p *idlePicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	if p.link != nil {
		p.link.Connect()
	}
	return balancer.PickResult{}, balancer.ErrNoSubConnAvailable
}
