// ABOUTME: gRPC interceptors that attach the agent header (client) and enforce it (server)
// ABOUTME: Server side rejects calls without an agent id with InvalidArgument

package header

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// healthPrefix is exempt from header checks so stock health probes work.
const healthPrefix = "/grpc.health.v1.Health/"

// UnaryClientInterceptor attaches h to every outgoing unary call.
func UnaryClientInterceptor(h Header) grpc.UnaryClientInterceptor {
	pairs := h.Pairs()
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor attaches h to every outgoing stream.
func StreamClientInterceptor(h Header) grpc.StreamClientInterceptor {
	pairs := h.Pairs()
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// logRejection logs a rejected call with the peer address when known.
func logRejection(logger *slog.Logger, ctx context.Context, method string, err error) {
	if logger == nil {
		return
	}
	attrs := []any{"method", method, "error", err}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	logger.Warn("rejected call without agent header", attrs...)
}

func extract(ctx context.Context) (Header, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Header{}, status.Error(codes.InvalidArgument, ErrMissingAgentID.Error())
	}
	h, err := FromMetadata(md)
	if err != nil {
		return Header{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return h, nil
}

// UnaryServerInterceptor requires an agent header and stores it in the context.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}
		h, err := extract(ctx)
		if err != nil {
			logRejection(logger, ctx, info.FullMethod, err)
			return nil, err
		}
		return handler(WithHeader(ctx, h), req)
	}
}

// StreamServerInterceptor requires an agent header and stores it in the stream context.
func StreamServerInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(srv, ss)
		}
		h, err := extract(ss.Context())
		if err != nil {
			logRejection(logger, ss.Context(), info.FullMethod, err)
			return err
		}
		wrapped := &wrappedServerStream{
			ServerStream: ss,
			ctx:          WithHeader(ss.Context(), h),
		}
		return handler(srv, wrapped)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
