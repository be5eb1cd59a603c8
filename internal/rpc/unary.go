// ABOUTME: Unary calls split into a send half and a receive half.
// ABOUTME: Lets a caller put requests on the wire in order and collect replies elsewhere.

package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"

	"github.com/2389/coven-transport/internal/wire"
)

// unaryDesc marks a stream with one request and one response.
var unaryDesc = &grpc.StreamDesc{}

// UnaryCall is a unary call whose request has been sent.
type UnaryCall struct {
	stream grpc.ClientStream
}

// StartUnary opens the call and sends in. The request is written before
// StartUnary returns, so calls started one after another from a single
// goroutine reach the transport in that order. Client interceptors run as
// stream interceptors.
func StartUnary(ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*UnaryCall, error) {
	stream, err := cc.NewStream(ctx, unaryDesc, method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	// io.EOF means the stream already ended; Finish reports the status.
	if err := stream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &UnaryCall{stream: stream}, nil
}

// Finish waits for the response. It must be called exactly once.
func (c *UnaryCall) Finish() (*wire.RawResult, error) {
	out := new(wire.RawResult)
	if err := c.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}
