package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/header"
)

// incoming builds a server-side context as the header interceptor leaves it.
func incoming(agentID, token string) context.Context {
	md := metadata.MD{}
	if token != "" {
		md.Set(authorizationKey, bearerPrefix+token)
	}
	ctx := metadata.NewIncomingContext(context.Background(), md)
	return header.WithHeader(ctx, header.Header{AgentID: agentID, ApplicationName: "app", StartTime: 1})
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestUnaryServerInterceptor(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	interceptor := UnaryServerInterceptor(verifier, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/coven.telemetry.Agent/RequestAgentInfo"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	valid, err := verifier.Generate("agent-1", time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Generate("agent-1", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     context.Context
		wantErr codes.Code
	}{
		{name: "valid token", ctx: incoming("agent-1", valid), wantErr: codes.OK},
		{name: "missing token", ctx: incoming("agent-1", ""), wantErr: codes.Unauthenticated},
		{name: "garbage token", ctx: incoming("agent-1", "nope"), wantErr: codes.Unauthenticated},
		{name: "expired token", ctx: incoming("agent-1", expired), wantErr: codes.Unauthenticated},
		{name: "token for another agent", ctx: incoming("agent-2", valid), wantErr: codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := interceptor(tt.ctx, nil, info, handler)
			assert.Equal(t, tt.wantErr, status.Code(err))
			if tt.wantErr == codes.OK {
				assert.Equal(t, "ok", resp)
			}
		})
	}

	t.Run("health is exempt", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestStreamServerInterceptor(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	interceptor := StreamServerInterceptor(verifier, nil)
	info := &grpc.StreamServerInfo{FullMethod: "/coven.telemetry.Command/CommandStream"}

	called := false
	handler := func(srv any, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	token, err := verifier.Generate("agent-1", time.Hour)
	require.NoError(t, err)

	err = interceptor(nil, &fakeStream{ctx: incoming("agent-1", token)}, info, handler)
	require.NoError(t, err)
	assert.True(t, called)

	called = false
	err = interceptor(nil, &fakeStream{ctx: incoming("agent-1", "")}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)
}

func TestClientInterceptorsAttachToken(t *testing.T) {
	var got []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(authorizationKey)
		return nil
	}
	require.NoError(t, UnaryClientInterceptor("abc")(context.Background(), "/x/y", nil, nil, nil, invoker))
	assert.Equal(t, []string{"Bearer abc"}, got)

	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(authorizationKey)
		return nil, nil
	}
	_, err := StreamClientInterceptor("def")(context.Background(), nil, nil, "/x/y", streamer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer def"}, got)
}
