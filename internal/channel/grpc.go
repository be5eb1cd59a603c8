// ABOUTME: gRPC implementation of the channel Factory used by agents
// ABOUTME: Wires keepalive, agent header interceptors, compression and the single-link balancer

package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"

	"github.com/2389/coven-transport/internal/auth"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/singlelink"
	"github.com/2389/coven-transport/internal/wire"
)

// staticScheme names the per-channel resolver used for comma-separated endpoints.
const staticScheme = "coven-static"

// ErrFactoryClosed is returned by Build after Close.
var ErrFactoryClosed = errors.New("channel factory closed")

// GRPCOptions configures channels built by GRPCFactory.
type GRPCOptions struct {
	Header           header.Header
	Token            string // bearer token; empty sends none
	Compression      string
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended last, so tests can swap the dialer.
	DialOptions []grpc.DialOption
	Logger      *slog.Logger
}

// GRPCFactory builds grpc.ClientConn channels.
type GRPCFactory struct {
	opts GRPCOptions

	mu     sync.Mutex
	conns  map[*grpcConn]struct{}
	closed bool
}

// NewGRPCFactory creates a factory. Zero keepalive values get defaults that
// match the collector's enforcement policy.
func NewGRPCFactory(opts GRPCOptions) *GRPCFactory {
	if opts.KeepaliveTime == 0 {
		opts.KeepaliveTime = 30 * time.Second
	}
	if opts.KeepaliveTimeout == 0 {
		opts.KeepaliveTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &GRPCFactory{opts: opts, conns: make(map[*grpcConn]struct{})}
}

// Build creates a channel to endpoint. endpoint is a gRPC target URI
// ("dns:///host:port", "passthrough:///x"), a bare host:port, or a
// comma-separated list of host:port that the single-link policy treats as
// equivalent hosts.
func (f *GRPCFactory) Build(name, endpoint string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFactoryClosed
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("endpoint is empty")
	}

	if f.opts.Compression != "" && !wire.ValidCompression(f.opts.Compression) {
		return nil, fmt.Errorf("unknown compression %q", f.opts.Compression)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                f.opts.KeepaliveTime,
			Timeout:             f.opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultServiceConfig(singlelink.ServiceConfig),
		grpc.WithChainUnaryInterceptor(header.UnaryClientInterceptor(f.opts.Header)),
		grpc.WithChainStreamInterceptor(header.StreamClientInterceptor(f.opts.Header)),
		grpc.WithUserAgent("coven-agent/" + name),
	}
	if f.opts.Token != "" {
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(auth.UnaryClientInterceptor(f.opts.Token)),
			grpc.WithChainStreamInterceptor(auth.StreamClientInterceptor(f.opts.Token)),
		)
	}
	if f.opts.Compression != "" {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor(f.opts.Compression)))
	}

	target := endpoint
	switch {
	case strings.Contains(endpoint, ":///"):
	case strings.Contains(endpoint, ","):
		r := manual.NewBuilderWithScheme(staticScheme)
		r.InitialState(resolver.State{Addresses: splitAddresses(endpoint)})
		opts = append(opts, grpc.WithResolvers(r))
		target = staticScheme + ":///" + name
	default:
		target = "dns:///" + endpoint
	}
	opts = append(opts, f.opts.DialOptions...)

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", target, err)
	}

	conn := &grpcConn{ClientConn: cc, factory: f}
	f.conns[conn] = struct{}{}
	f.opts.Logger.Debug("channel built", "name", name, "target", target)
	return conn, nil
}

// Close closes channels that are still open and rejects further builds.
func (f *GRPCFactory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	open := make([]*grpcConn, 0, len(f.conns))
	for c := range f.conns {
		open = append(open, c)
	}
	f.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *GRPCFactory) forget(c *grpcConn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

func splitAddresses(endpoint string) []resolver.Address {
	var addrs []resolver.Address
	for _, part := range strings.Split(endpoint, ",") {
		if part = strings.TrimSpace(part); part != "" {
			addrs = append(addrs, resolver.Address{Addr: part})
		}
	}
	return addrs
}

// grpcConn closes its ClientConn once and detaches from the factory.
type grpcConn struct {
	*grpc.ClientConn
	factory *GRPCFactory
	once    sync.Once
	err     error
}

func (c *grpcConn) Close() error {
	c.once.Do(func() {
		c.err = c.ClientConn.Close()
		c.factory.forget(c)
	})
	return c.err
}
