// ABOUTME: gRPC stats handler assigning every accepted connection a transport id.
// ABOUTME: The id rides in the connection context and keys the agent registry.

package collector

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc/stats"
)

type transportIDKey struct{}

// TransportIDFromContext returns the id assigned to the connection a
// request arrived on.
func TransportIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(transportIDKey{}).(uint64)
	return id, ok
}

// connTagger numbers connections from 1. onEnd runs when a connection closes.
type connTagger struct {
	next  atomic.Uint64
	onEnd func(id uint64)
}

var _ stats.Handler = (*connTagger)(nil)

func (t *connTagger) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return context.WithValue(ctx, transportIDKey{}, t.next.Add(1))
}

func (t *connTagger) HandleConn(ctx context.Context, s stats.ConnStats) {
	if _, ok := s.(*stats.ConnEnd); !ok || t.onEnd == nil {
		return
	}
	if id, ok := TransportIDFromContext(ctx); ok {
		t.onEnd(id)
	}
}

func (t *connTagger) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context { return ctx }
func (t *connTagger) HandleRPC(context.Context, stats.RPCStats)                       {}
