// ABOUTME: Protocol router mapping payloads to wire messages and wire messages to remote methods
// ABOUTME: Four families: agent info, API metadata, SQL metadata, string metadata

package sender

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/2389/coven-transport/internal/rpc"
	"github.com/2389/coven-transport/internal/wire"
)

// MessageConverter turns a domain object into its wire message. It returns
// an error for types it has no mapping for.
type MessageConverter interface {
	ToWire(payload any) (wire.Message, error)
}

// Method is a bound remote method.
type Method struct {
	Name string
	cc   grpc.ClientConnInterface
}

// Start sends msg and returns without waiting for the response.
func (m Method) Start(ctx context.Context, msg wire.Message) (*rpc.UnaryCall, error) {
	if m.cc == nil {
		return nil, fmt.Errorf("%w: method %q is not bound", ErrUnsupportedMessage, m.Name)
	}
	return rpc.StartUnary(ctx, m.cc, m.Name, msg)
}

// Invoke performs the call and returns the undecoded response.
func (m Method) Invoke(ctx context.Context, msg wire.Message) (*wire.RawResult, error) {
	call, err := m.Start(ctx, msg)
	if err != nil {
		return nil, err
	}
	return call.Finish()
}

// Router owns the conversion and routing rules.
type Router struct {
	converter MessageConverter
	cc        grpc.ClientConnInterface
}

// NewRouter binds the router to one channel's connection.
func NewRouter(converter MessageConverter, cc grpc.ClientConnInterface) *Router {
	return &Router{converter: converter, cc: cc}
}

// Convert returns payload unchanged when it already is a wire message and
// runs it through the converter otherwise.
func (r *Router) Convert(payload any) (wire.Message, error) {
	if msg, ok := payload.(wire.Message); ok {
		return msg, nil
	}
	if r.converter == nil {
		return nil, &ConversionError{Type: label(payload)}
	}
	msg, err := r.converter.ToWire(payload)
	if err != nil {
		return nil, &ConversionError{Type: label(payload), Err: err}
	}
	if msg == nil {
		return nil, &ConversionError{Type: label(payload)}
	}
	return msg, nil
}

// Route binds msg to its remote method.
func (r *Router) Route(msg wire.Message) (Method, error) {
	var name string
	switch msg.(type) {
	case *wire.AgentInfo:
		name = rpc.Agent_RequestAgentInfo_FullMethodName
	case *wire.APIMetaData:
		name = rpc.Metadata_RequestApiMetaData_FullMethodName
	case *wire.SQLMetaData:
		name = rpc.Metadata_RequestSqlMetaData_FullMethodName
	case *wire.StringMetaData:
		name = rpc.Metadata_RequestStringMetaData_FullMethodName
	default:
		return Method{}, fmt.Errorf("%w: %s", ErrUnsupportedMessage, msg.MessageName())
	}
	return Method{Name: name, cc: r.cc}, nil
}
