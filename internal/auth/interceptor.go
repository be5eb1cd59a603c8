// ABOUTME: gRPC interceptors that attach a bearer token (client) and verify it (server)
// ABOUTME: The verified subject must match the agent id carried in the agent header

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/header"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "Bearer "
	healthPrefix     = "/grpc.health.v1.Health/"
)

// UnaryClientInterceptor attaches token to every outgoing unary call.
func UnaryClientInterceptor(token string) grpc.UnaryClientInterceptor {
	value := bearerPrefix + token
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationKey, value)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor attaches token to every outgoing stream.
func StreamClientInterceptor(token string) grpc.StreamClientInterceptor {
	value := bearerPrefix + token
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationKey, value)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, method, reason string) {
	if logger == nil {
		return
	}
	attrs := []any{"method", method, "reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	logger.Warn("auth failure", attrs...)
}

// authenticate checks the bearer token against the agent header already in
// ctx. It must run after the header interceptor.
func authenticate(ctx context.Context, tokens TokenVerifier) (reason string, err error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(authorizationKey)
	if len(values) == 0 || !strings.HasPrefix(values[0], bearerPrefix) {
		return "missing token", status.Error(codes.Unauthenticated, "missing bearer token")
	}

	agentID, err := tokens.Verify(strings.TrimPrefix(values[0], bearerPrefix))
	if err != nil {
		return err.Error(), status.Error(codes.Unauthenticated, err.Error())
	}

	h, ok := header.FromContext(ctx)
	if !ok || h.AgentID != agentID {
		return "agent id mismatch", status.Errorf(codes.PermissionDenied, "token is not valid for agent %q", h.AgentID)
	}
	return "", nil
}

// UnaryServerInterceptor rejects unary calls without a valid token for the
// calling agent.
func UnaryServerInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}
		if reason, err := authenticate(ctx, tokens); err != nil {
			logAuthFailure(logger, ctx, info.FullMethod, reason)
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor rejects streams without a valid token for the
// calling agent.
func StreamServerInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(srv, ss)
		}
		if reason, err := authenticate(ss.Context(), tokens); err != nil {
			logAuthFailure(logger, ss.Context(), info.FullMethod, reason)
			return err
		}
		return handler(srv, ss)
	}
}
