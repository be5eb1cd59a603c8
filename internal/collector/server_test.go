// ABOUTME: End-to-end tests running a real sender and command client against the collector.
// ABOUTME: Uses an in-memory bufconn listener so no ports are bound.

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/coven-transport/internal/auth"
	"github.com/2389/coven-transport/internal/channel"
	"github.com/2389/coven-transport/internal/command"
	"github.com/2389/coven-transport/internal/config"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/logging"
	"github.com/2389/coven-transport/internal/rpc"
	"github.com/2389/coven-transport/internal/sender"
	"github.com/2389/coven-transport/internal/store"
	"github.com/2389/coven-transport/internal/telemetry"
	"github.com/2389/coven-transport/internal/wire"
)

type testCollector struct {
	srv *Server
	lis *bufconn.Listener
}

func startCollector(t *testing.T, h Handler) *testCollector {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	return startCollectorWith(t, cfg, h)
}

func startCollectorWith(t *testing.T, cfg *config.Config, h Handler) *testCollector {
	t.Helper()

	srv, err := New(cfg, h, logging.Discard())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.ServeGRPC(lis) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testCollector{srv: srv, lis: lis}
}

func (c *testCollector) dialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return c.lis.DialContext(ctx)
	})
}

// openChannel connects a channel manager to the collector as agent agentID.
func (c *testCollector) openChannel(t *testing.T, agentID string) *channel.Manager {
	t.Helper()
	return c.openChannelWithToken(t, agentID, "")
}

func (c *testCollector) openChannelWithToken(t *testing.T, agentID, token string) *channel.Manager {
	t.Helper()
	factory := channel.NewGRPCFactory(channel.GRPCOptions{
		Header:      header.Header{AgentID: agentID, ApplicationName: "app", StartTime: 1000},
		Token:       token,
		Compression: wire.CompressionZstd,
		DialOptions: []grpc.DialOption{c.dialer()},
	})
	mgr, err := channel.Open(agentID, "passthrough:///bufnet", factory, logging.Discard())
	require.NoError(t, err)
	return mgr
}

func newSender(t *testing.T, mgr *channel.Manager, opts ...sender.Option) *sender.DataSender {
	t.Helper()
	opts = append([]sender.Option{sender.WithLogger(logging.Discard())}, opts...)
	s, err := sender.New(sender.Config{RetryDelay: 50 * time.Millisecond}, mgr, telemetry.Converter{}, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestEndToEndDelivery(t *testing.T) {
	rec := &recordingHandler{}
	tc := startCollector(t, rec)
	s := newSender(t, tc.openChannel(t, "agent-1"))

	done := make(chan sender.Outcome, 1)
	require.True(t, s.RequestWithListener(telemetry.AgentInfo{Hostname: "web-01", PID: 42}, sender.ListenerFunc(func(o sender.Outcome) {
		done <- o
	})))
	require.True(t, s.Request(telemetry.SQLMetadata{ID: 1, SQL: "select 1"}))
	require.True(t, s.Request(&telemetry.StringMetadata{ID: 2, Value: "GET /"}))
	require.True(t, s.Request(telemetry.APIMetadata{ID: 3, Info: "main()", Line: 10}))

	select {
	case o := <-done:
		assert.Equal(t, sender.Success, o.Kind)
		require.NotNil(t, o.Result)
		assert.True(t, o.Result.Success)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}

	assert.Eventually(t, func() bool {
		infos, api, sql, str := rec.counts()
		return infos == 1 && api == 1 && sql == 1 && str == 1
	}, 5*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "web-01", rec.infos[0].Hostname)
	assert.Equal(t, int32(42), rec.infos[0].PID)
	assert.Equal(t, "select 1", rec.sql[0].SQL)
	for _, h := range rec.headers {
		assert.Equal(t, "agent-1", h.AgentID)
		assert.Equal(t, int64(1000), h.StartTime)
	}
	assert.Equal(t, 0, s.RetryLen())
}

func TestEndToEndPersistsToStore(t *testing.T) {
	db, err := store.NewSQLiteStore(store.MemoryPath, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tc := startCollector(t, db)
	s := newSender(t, tc.openChannel(t, "agent-db"))

	require.True(t, s.Request(telemetry.AgentInfo{Hostname: "db-01", PID: 7}))
	require.True(t, s.Request(telemetry.SQLMetadata{ID: 11, SQL: "select now()"}))

	agent := store.Agent{AgentID: "agent-db", StartTime: 1000}
	assert.Eventually(t, func() bool {
		text, err := db.LookupSQL(context.Background(), agent, 11)
		return err == nil && text == "select now()"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		rec, err := db.GetAgent(context.Background(), agent)
		return err == nil && rec.Hostname == "db-01" && rec.ApplicationName == "app"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEndToEndApplicationFailureRetried(t *testing.T) {
	rec := &recordingHandler{failNext: 2}
	tc := startCollector(t, rec)
	s := newSender(t, tc.openChannel(t, "agent-1"))

	require.True(t, s.Request(telemetry.SQLMetadata{ID: 7, SQL: "update t set x = 1"}))

	assert.Eventually(t, func() bool {
		_, _, sql, _ := rec.counts()
		return sql == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEndToEndDuplicateMetadataHandledOnce(t *testing.T) {
	rec := &recordingHandler{}
	tc := startCollector(t, rec)
	s := newSender(t, tc.openChannel(t, "agent-1"))

	acks := make(chan sender.Outcome, 2)
	listener := sender.ListenerFunc(func(o sender.Outcome) { acks <- o })
	for range 2 {
		require.True(t, s.RequestWithListener(telemetry.SQLMetadata{ID: 5, SQL: "select 5"}, listener))
		select {
		case o := <-acks:
			assert.True(t, o.OK())
		case <-time.After(5 * time.Second):
			t.Fatal("missing acknowledgement")
		}
	}

	_, _, sql, _ := rec.counts()
	assert.Equal(t, 1, sql)
}

func TestMissingHeaderRejected(t *testing.T) {
	tc := startCollector(t, &recordingHandler{})

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		tc.dialer(),
	)
	require.NoError(t, err)
	defer cc.Close()

	_, err = rpc.NewAgentClient(cc).RequestAgentInfo(context.Background(), &wire.AgentInfo{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Health checks need no header.
	resp, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAuthRequired(t *testing.T) {
	const secret = "collector-test-secret"
	cfg := config.Default()
	cfg.Auth.Secret = secret
	tc := startCollectorWith(t, cfg, &recordingHandler{})

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate("agent-auth", time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	good := tc.openChannelWithToken(t, "agent-auth", token)
	defer good.Close()
	res, err := good.Agent().RequestAgentInfo(ctx, &wire.AgentInfo{Hostname: "h"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// A token issued to another agent is refused.
	thief := tc.openChannelWithToken(t, "agent-other", token)
	defer thief.Close()
	_, err = thief.Agent().RequestAgentInfo(ctx, &wire.AgentInfo{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	anonymous := tc.openChannel(t, "agent-auth")
	defer anonymous.Close()
	_, err = anonymous.Agent().RequestAgentInfo(ctx, &wire.AgentInfo{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestCommandStreamEcho(t *testing.T) {
	tc := startCollector(t, &recordingHandler{})
	mgr := tc.openChannel(t, "agent-echo")

	client := command.NewClient(mgr.Command(), command.EchoHandler{}, command.Options{
		InitialBackoff: 10 * time.Millisecond,
		Logger:         logging.Discard(),
	})
	s := newSender(t, mgr, sender.WithService(client))

	require.Eventually(t, func() bool { return tc.srv.Agents().Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	conns := tc.srv.Agents().List()
	require.Len(t, conns, 1)
	id := conns[0].TransportID
	assert.Equal(t, "agent-echo", conns[0].Header.AgentID)
	assert.Equal(t, []string{wire.CommandEcho}, conns[0].Commands)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := tc.srv.Agents().Echo(ctx, id, "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", got)

	// The same round trip through the HTTP API.
	httpSrv := httptest.NewServer(tc.srv.routes())
	defer httpSrv.Close()

	resp, err := http.Post(fmt.Sprintf("%s/api/agents/echo?id=%d&message=pong", httpSrv.URL, id), "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var echo EchoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	assert.Equal(t, "pong", echo.Message)

	// Stopping the sender stops the command client and closes the channel.
	s.Stop()
	assert.Eventually(t, func() bool { return tc.srv.Agents().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSecondCommandStreamOnConnectionRejected(t *testing.T) {
	tc := startCollector(t, &recordingHandler{})
	mgr := tc.openChannel(t, "agent-dup")
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hello := &wire.CommandReply{Handshake: &wire.Handshake{SupportedCommands: []string{wire.CommandEcho}}}

	first, err := mgr.Command().CommandStream(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Send(hello))
	require.Eventually(t, func() bool { return tc.srv.Agents().Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	second, err := mgr.Command().CommandStream(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Send(hello))
	_, err = second.Recv()
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, 1, tc.srv.Agents().Len())

	// The first stream survives and can be closed normally.
	require.NoError(t, first.CloseSend())
	assert.Eventually(t, func() bool { return tc.srv.Agents().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestCommandStreamRequiresHandshake(t *testing.T) {
	tc := startCollector(t, &recordingHandler{})
	mgr := tc.openChannel(t, "agent-rude")
	defer mgr.Close()

	stream, err := mgr.Command().CommandStream(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&wire.CommandReply{RequestID: 1}))
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHTTPEndpoints(t *testing.T) {
	tc := startCollector(t, &recordingHandler{})
	httpSrv := httptest.NewServer(tc.srv.routes())
	defer httpSrv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(httpSrv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = get("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get("/api/agents")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "coven_collector_connected_agents")

	resp, err := http.Post(httpSrv.URL+"/api/agents/echo?id=99&message=x", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(httpSrv.URL+"/api/agents/echo?id=abc", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code, _ = get("/api/agents/echo?id=1")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, &recordingHandler{}, nil)
	assert.Error(t, err)
	_, err = New(config.Default(), nil, nil)
	assert.Error(t, err)
}
