// ABOUTME: gRPC service descriptors, client stubs and server interfaces for the telemetry API.
// ABOUTME: Written in the shape protoc-gen-go-grpc emits, over the CBOR wire codec.

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/wire"
)

// Service names.
const (
	AgentServiceName    = "coven.telemetry.Agent"
	MetadataServiceName = "coven.telemetry.Metadata"
	CommandServiceName  = "coven.telemetry.Command"
)

// Full method names.
const (
	Agent_RequestAgentInfo_FullMethodName         = "/coven.telemetry.Agent/RequestAgentInfo"
	Metadata_RequestApiMetaData_FullMethodName    = "/coven.telemetry.Metadata/RequestApiMetaData"
	Metadata_RequestSqlMetaData_FullMethodName    = "/coven.telemetry.Metadata/RequestSqlMetaData"
	Metadata_RequestStringMetaData_FullMethodName = "/coven.telemetry.Metadata/RequestStringMetaData"
	Command_CommandStream_FullMethodName          = "/coven.telemetry.Command/CommandStream"
)

// withCodec prepends the wire content subtype to caller options.
func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(wire.CodecName)}, opts...)
}

// AgentClient is the client API for the Agent service.
//
// Responses come back undecoded; see wire.RawResult.
type AgentClient interface {
	RequestAgentInfo(ctx context.Context, in *wire.AgentInfo, opts ...grpc.CallOption) (*wire.RawResult, error)
}

type agentClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentClient binds an AgentClient to cc.
func NewAgentClient(cc grpc.ClientConnInterface) AgentClient {
	return &agentClient{cc}
}

func (c *agentClient) RequestAgentInfo(ctx context.Context, in *wire.AgentInfo, opts ...grpc.CallOption) (*wire.RawResult, error) {
	out := new(wire.RawResult)
	if err := c.cc.Invoke(ctx, Agent_RequestAgentInfo_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// AgentServer is the server API for the Agent service.
type AgentServer interface {
	RequestAgentInfo(context.Context, *wire.AgentInfo) (*wire.Result, error)
}

// UnimplementedAgentServer can be embedded to have forward compatible implementations.
type UnimplementedAgentServer struct{}

func (UnimplementedAgentServer) RequestAgentInfo(context.Context, *wire.AgentInfo) (*wire.Result, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestAgentInfo not implemented")
}

// RegisterAgentServer registers srv on s.
func RegisterAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&Agent_ServiceDesc, srv)
}

func _Agent_RequestAgentInfo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.AgentInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).RequestAgentInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Agent_RequestAgentInfo_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).RequestAgentInfo(ctx, req.(*wire.AgentInfo))
	}
	return interceptor(ctx, in, info, handler)
}

// Agent_ServiceDesc is the grpc.ServiceDesc for the Agent service.
var Agent_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AgentServiceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestAgentInfo",
			Handler:    _Agent_RequestAgentInfo_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coven/telemetry.cbor",
}

// MetadataClient is the client API for the Metadata service.
type MetadataClient interface {
	RequestApiMetaData(ctx context.Context, in *wire.APIMetaData, opts ...grpc.CallOption) (*wire.RawResult, error)
	RequestSqlMetaData(ctx context.Context, in *wire.SQLMetaData, opts ...grpc.CallOption) (*wire.RawResult, error)
	RequestStringMetaData(ctx context.Context, in *wire.StringMetaData, opts ...grpc.CallOption) (*wire.RawResult, error)
}

type metadataClient struct {
	cc grpc.ClientConnInterface
}

// NewMetadataClient binds a MetadataClient to cc.
func NewMetadataClient(cc grpc.ClientConnInterface) MetadataClient {
	return &metadataClient{cc}
}

func (c *metadataClient) RequestApiMetaData(ctx context.Context, in *wire.APIMetaData, opts ...grpc.CallOption) (*wire.RawResult, error) {
	out := new(wire.RawResult)
	if err := c.cc.Invoke(ctx, Metadata_RequestApiMetaData_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metadataClient) RequestSqlMetaData(ctx context.Context, in *wire.SQLMetaData, opts ...grpc.CallOption) (*wire.RawResult, error) {
	out := new(wire.RawResult)
	if err := c.cc.Invoke(ctx, Metadata_RequestSqlMetaData_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metadataClient) RequestStringMetaData(ctx context.Context, in *wire.StringMetaData, opts ...grpc.CallOption) (*wire.RawResult, error) {
	out := new(wire.RawResult)
	if err := c.cc.Invoke(ctx, Metadata_RequestStringMetaData_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// MetadataServer is the server API for the Metadata service.
type MetadataServer interface {
	RequestApiMetaData(context.Context, *wire.APIMetaData) (*wire.Result, error)
	RequestSqlMetaData(context.Context, *wire.SQLMetaData) (*wire.Result, error)
	RequestStringMetaData(context.Context, *wire.StringMetaData) (*wire.Result, error)
}

// UnimplementedMetadataServer can be embedded to have forward compatible implementations.
type UnimplementedMetadataServer struct{}

func (UnimplementedMetadataServer) RequestApiMetaData(context.Context, *wire.APIMetaData) (*wire.Result, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestApiMetaData not implemented")
}

func (UnimplementedMetadataServer) RequestSqlMetaData(context.Context, *wire.SQLMetaData) (*wire.Result, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestSqlMetaData not implemented")
}

func (UnimplementedMetadataServer) RequestStringMetaData(context.Context, *wire.StringMetaData) (*wire.Result, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestStringMetaData not implemented")
}

// RegisterMetadataServer registers srv on s.
func RegisterMetadataServer(s grpc.ServiceRegistrar, srv MetadataServer) {
	s.RegisterService(&Metadata_ServiceDesc, srv)
}

func _Metadata_RequestApiMetaData_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.APIMetaData)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetadataServer).RequestApiMetaData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Metadata_RequestApiMetaData_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetadataServer).RequestApiMetaData(ctx, req.(*wire.APIMetaData))
	}
	return interceptor(ctx, in, info, handler)
}

func _Metadata_RequestSqlMetaData_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.SQLMetaData)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetadataServer).RequestSqlMetaData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Metadata_RequestSqlMetaData_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetadataServer).RequestSqlMetaData(ctx, req.(*wire.SQLMetaData))
	}
	return interceptor(ctx, in, info, handler)
}

func _Metadata_RequestStringMetaData_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.StringMetaData)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetadataServer).RequestStringMetaData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Metadata_RequestStringMetaData_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetadataServer).RequestStringMetaData(ctx, req.(*wire.StringMetaData))
	}
	return interceptor(ctx, in, info, handler)
}

// Metadata_ServiceDesc is the grpc.ServiceDesc for the Metadata service.
var Metadata_ServiceDesc = grpc.ServiceDesc{
	ServiceName: MetadataServiceName,
	HandlerType: (*MetadataServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestApiMetaData",
			Handler:    _Metadata_RequestApiMetaData_Handler,
		},
		{
			MethodName: "RequestSqlMetaData",
			Handler:    _Metadata_RequestSqlMetaData_Handler,
		},
		{
			MethodName: "RequestStringMetaData",
			Handler:    _Metadata_RequestStringMetaData_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coven/telemetry.cbor",
}

// CommandClient is the client API for the Command service.
type CommandClient interface {
	CommandStream(ctx context.Context, opts ...grpc.CallOption) (Command_CommandStreamClient, error)
}

type commandClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandClient binds a CommandClient to cc.
func NewCommandClient(cc grpc.ClientConnInterface) CommandClient {
	return &commandClient{cc}
}

func (c *commandClient) CommandStream(ctx context.Context, opts ...grpc.CallOption) (Command_CommandStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &Command_ServiceDesc.Streams[0], Command_CommandStream_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wire.CommandReply, wire.Command]{ClientStream: stream}
	return x, nil
}

// Command_CommandStreamClient is the agent end of the command stream.
type Command_CommandStreamClient = grpc.BidiStreamingClient[wire.CommandReply, wire.Command]

// CommandServer is the server API for the Command service.
type CommandServer interface {
	CommandStream(Command_CommandStreamServer) error
}

// UnimplementedCommandServer can be embedded to have forward compatible implementations.
type UnimplementedCommandServer struct{}

func (UnimplementedCommandServer) CommandStream(Command_CommandStreamServer) error {
	return status.Error(codes.Unimplemented, "method CommandStream not implemented")
}

// RegisterCommandServer registers srv on s.
func RegisterCommandServer(s grpc.ServiceRegistrar, srv CommandServer) {
	s.RegisterService(&Command_ServiceDesc, srv)
}

func _Command_CommandStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(CommandServer).CommandStream(&grpc.GenericServerStream[wire.CommandReply, wire.Command]{ServerStream: stream})
}

// Command_CommandStreamServer is the collector end of the command stream.
type Command_CommandStreamServer = grpc.BidiStreamingServer[wire.CommandReply, wire.Command]

// Command_ServiceDesc is the grpc.ServiceDesc for the Command service.
var Command_ServiceDesc = grpc.ServiceDesc{
	ServiceName: CommandServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "CommandStream",
			Handler:       _Command_CommandStream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "coven/telemetry.cbor",
}
