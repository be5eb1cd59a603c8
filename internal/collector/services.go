// ABOUTME: gRPC services for the four request families and the command stream.
// ABOUTME: Unary calls go to the Handler with metadata dedupe; command streams join the agent registry.

package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/agent"
	"github.com/2389/coven-transport/internal/dedupe"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/metrics"
	"github.com/2389/coven-transport/internal/rpc"
	"github.com/2389/coven-transport/internal/wire"
)

// Metadata families used in dedupe keys.
const (
	familyAPI    = "api"
	familySQL    = "sql"
	familyString = "string"
)

// telemetryService implements the Agent and Metadata services.
type telemetryService struct {
	rpc.UnimplementedAgentServer
	rpc.UnimplementedMetadataServer

	handler Handler
	dedupe  *dedupe.Cache
	metrics *metrics.CollectorMetrics
	logger  *slog.Logger
}

func (s *telemetryService) RequestAgentInfo(ctx context.Context, in *wire.AgentInfo) (*wire.Result, error) {
	h, _ := header.FromContext(ctx)
	method := rpc.Agent_RequestAgentInfo_FullMethodName
	if err := s.handler.HandleAgentInfo(ctx, h, in); err != nil {
		return s.reject(method, h, err), nil
	}
	s.metrics.Request(method, metrics.ResultStored)
	return &wire.Result{Success: true}, nil
}

func (s *telemetryService) RequestApiMetaData(ctx context.Context, in *wire.APIMetaData) (*wire.Result, error) {
	return s.metadata(ctx, rpc.Metadata_RequestApiMetaData_FullMethodName, familyAPI, in.APIID,
		func(h header.Header) error { return s.handler.HandleAPIMetaData(ctx, h, in) }), nil
}

func (s *telemetryService) RequestSqlMetaData(ctx context.Context, in *wire.SQLMetaData) (*wire.Result, error) {
	return s.metadata(ctx, rpc.Metadata_RequestSqlMetaData_FullMethodName, familySQL, in.SQLID,
		func(h header.Header) error { return s.handler.HandleSQLMetaData(ctx, h, in) }), nil
}

func (s *telemetryService) RequestStringMetaData(ctx context.Context, in *wire.StringMetaData) (*wire.Result, error) {
	return s.metadata(ctx, rpc.Metadata_RequestStringMetaData_FullMethodName, familyString, in.StringID,
		func(h header.Header) error { return s.handler.HandleStringMetaData(ctx, h, in) }), nil
}

// metadata acknowledges entries seen within the dedupe window without
// calling the handler. Entries are only remembered once handled.
func (s *telemetryService) metadata(ctx context.Context, method, family string, id int32, handle func(header.Header) error) *wire.Result {
	h, _ := header.FromContext(ctx)
	key := dedupe.Key{AgentID: h.AgentID, StartTime: h.StartTime, Family: family, ID: id}

	if s.dedupe.Seen(key) {
		s.logger.Debug("duplicate metadata acknowledged", "key", key.String())
		s.metrics.Request(method, metrics.ResultDuplicate)
		return &wire.Result{Success: true}
	}
	if err := handle(h); err != nil {
		return s.reject(method, h, err)
	}
	s.dedupe.Mark(key)
	s.metrics.Request(method, metrics.ResultStored)
	return &wire.Result{Success: true}
}

func (s *telemetryService) reject(method string, h header.Header, err error) *wire.Result {
	s.logger.Warn("handler rejected request", "method", method, "agent", h.String(), "error", err)
	s.metrics.Request(method, metrics.ResultRejected)
	return &wire.Result{Success: false, Message: err.Error()}
}

// commandService implements the Command service.
type commandService struct {
	rpc.UnimplementedCommandServer

	agents  *agent.Registry
	metrics *metrics.CollectorMetrics
	logger  *slog.Logger
}

// CommandStream handles one agent's command stream.
// Protocol flow:
// 1. Agent sends a CommandReply carrying a Handshake
// 2. Collector registers the stream under the connection's transport id
// 3. Collector sends Commands; agent answers with CommandReplies
func (s *commandService) CommandStream(stream rpc.Command_CommandStreamServer) error {
	ctx := stream.Context()
	id, ok := TransportIDFromContext(ctx)
	if !ok {
		return status.Error(codes.Internal, "connection has no transport id")
	}
	h, _ := header.FromContext(ctx)

	first, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.Internal, "receiving handshake: %v", err)
	}
	if first.Handshake == nil {
		return status.Error(codes.InvalidArgument, "first message must be a handshake")
	}

	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	logger := s.logger.With("transport_id", id, "agent", h.String())
	conn := agent.NewConnection(agent.ConnectionParams{
		TransportID: id,
		Header:      h,
		Commands:    first.Handshake.SupportedCommands,
		RemoteAddr:  remote,
		Stream:      stream,
		Logger:      logger,
	})

	registered, err := s.agents.RegisterIfAbsent(id, conn)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "registering stream: %v", err)
	}
	s.metrics.StreamRegistered(registered)
	if !registered {
		logger.Warn("duplicate command stream on one connection")
		return status.Errorf(codes.AlreadyExists, "command stream already open for transport %d", id)
	}
	defer func() {
		s.agents.Unregister(id)
		s.metrics.StreamClosed()
	}()

	for {
		reply, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("command stream closed (EOF)")
				return nil
			}
			if code := status.Code(err); code == codes.Canceled || code == codes.Unavailable {
				logger.Info("command stream cancelled")
				return nil
			}
			logger.Error("receiving command reply", "error", err)
			return status.Errorf(codes.Internal, "receiving command reply: %v", err)
		}
		if reply.Handshake != nil {
			logger.Warn("received duplicate handshake")
			continue
		}
		conn.HandleReply(reply)
	}
}
