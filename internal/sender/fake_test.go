// ABOUTME: Test doubles for the sender: a scripted channel and a recording converter
// ABOUTME: The scripted channel answers unary calls without any network

package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/channel"
	"github.com/2389/coven-transport/internal/wire"
)

// testRetryDelay keeps retry cycles short enough for unit tests.
const testRetryDelay = 20 * time.Millisecond

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type invocation struct {
	method string
	msg    any
}

// responder decides the answer to the n-th call (0-based) across all methods.
type responder func(n int, method string, msg any) ([]byte, error)

type scriptedConn struct {
	respond responder

	mu    sync.Mutex
	calls []invocation
}

// record appends a call in arrival order and returns its index.
func (c *scriptedConn) record(method string, msg any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, invocation{method: method, msg: msg})
	return len(c.calls) - 1
}

func (c *scriptedConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	n := c.record(method, args)
	body, err := c.respond(n, method, args)
	if err != nil {
		return err
	}
	*reply.(*wire.RawResult) = *wire.NewRawResult(body)
	return nil
}

// NewStream serves unary calls only. The request is recorded on SendMsg and
// answered on RecvMsg, like a real transport.
func (c *scriptedConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	if desc.ClientStreams || desc.ServerStreams {
		return nil, errors.New("streams not scripted")
	}
	return &scriptedStream{conn: c, ctx: ctx, method: method, n: -1}, nil
}

type scriptedStream struct {
	conn   *scriptedConn
	ctx    context.Context
	method string
	n      int
	msg    any
}

func (s *scriptedStream) SendMsg(m any) error {
	s.n = s.conn.record(s.method, m)
	s.msg = m
	return nil
}

func (s *scriptedStream) RecvMsg(m any) error {
	if s.n < 0 {
		return errors.New("nothing sent")
	}
	body, err := s.conn.respond(s.n, s.method, s.msg)
	if err != nil {
		return err
	}
	*m.(*wire.RawResult) = *wire.NewRawResult(body)
	return nil
}

func (s *scriptedStream) Header() (metadata.MD, error) { return nil, nil }
func (s *scriptedStream) Trailer() metadata.MD         { return nil }
func (s *scriptedStream) CloseSend() error             { return nil }
func (s *scriptedStream) Context() context.Context     { return s.ctx }

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedConn) snapshot() []invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]invocation(nil), c.calls...)
}

type scriptedFactory struct {
	conn *scriptedConn
}

func (f *scriptedFactory) Build(string, string) (channel.Conn, error) { return f.conn, nil }
func (f *scriptedFactory) Close() error                               { return nil }

type converterFunc func(any) (wire.Message, error)

func (f converterFunc) ToWire(p any) (wire.Message, error) { return f(p) }

func okBody(t *testing.T) []byte {
	t.Helper()
	b, err := wire.EncodeResult(&wire.Result{Success: true})
	require.NoError(t, err)
	return b
}

func rejectBody(t *testing.T, msg string) []byte {
	t.Helper()
	b, err := wire.EncodeResult(&wire.Result{Success: false, Message: msg})
	require.NoError(t, err)
	return b
}

var errUnavailable = status.Error(codes.Unavailable, "collector unreachable")

// newTestSender builds a sender over a scripted channel. The sender is
// stopped when the test ends.
func newTestSender(t *testing.T, cfg Config, conv MessageConverter, respond responder, opts ...Option) (*DataSender, *scriptedConn) {
	t.Helper()
	conn := &scriptedConn{respond: respond}
	mgr, err := channel.Open("test", "scripted", &scriptedFactory{conn: conn}, testLogger())
	require.NoError(t, err)

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = testRetryDelay
	}
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	s, err := New(cfg, mgr, conv, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, conn
}
