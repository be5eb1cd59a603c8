// ABOUTME: Collector orchestrator that coordinates the gRPC and HTTP servers
// ABOUTME: Owns the agent registry, dedupe cache and metrics for one process lifecycle

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/coven-transport/internal/agent"
	"github.com/2389/coven-transport/internal/auth"
	"github.com/2389/coven-transport/internal/config"
	"github.com/2389/coven-transport/internal/dedupe"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/metrics"
	"github.com/2389/coven-transport/internal/rpc"
)

// Server accepts agent connections and serves the HTTP API.
type Server struct {
	config     *config.Config
	agents     *agent.Registry
	dedupe     *dedupe.Cache
	registry   *metrics.Registry
	metrics    *metrics.CollectorMetrics
	health     *health.Server
	grpcServer *grpc.Server
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this collector instance
	serverID string
}

// New creates a Server. handler receives every decoded request.
func New(cfg *config.Config, handler Handler, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	registry := metrics.NewRegistry(true)
	s := &Server{
		config:   cfg,
		agents:   agent.NewRegistry(logger.With("component", "agent-registry")),
		dedupe:   dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries, cfg.Dedupe.Sweep),
		registry: registry,
		metrics:  metrics.NewCollectorMetrics(registry.Registerer()),
		health:   health.NewServer(),
		logger:   logger.With("component", "collector"),
		serverID: generateServerID(),
	}

	tagger := &connTagger{onEnd: s.agents.Unregister}
	grpcLogger := logger.With("component", "grpc")
	unary := []grpc.UnaryServerInterceptor{header.UnaryServerInterceptor(grpcLogger)}
	stream := []grpc.StreamServerInterceptor{header.StreamServerInterceptor(grpcLogger)}
	if cfg.Auth.Secret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.Secret))
		authLogger := logger.With("component", "auth")
		unary = append(unary, auth.UnaryServerInterceptor(verifier, authLogger))
		stream = append(stream, auth.StreamServerInterceptor(verifier, authLogger))
	}

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(tagger),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Server.KeepaliveTime,
			Timeout: cfg.Server.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	telemetry := &telemetryService{
		handler: handler,
		dedupe:  s.dedupe,
		metrics: s.metrics,
		logger:  grpcLogger,
	}
	rpc.RegisterAgentServer(s.grpcServer, telemetry)
	rpc.RegisterMetadataServer(s.grpcServer, telemetry)
	rpc.RegisterCommandServer(s.grpcServer, &commandService{
		agents:  s.agents,
		metrics: s.metrics,
		logger:  grpcLogger,
	})
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Agents returns the registry of connected command streams.
func (s *Server) Agents() *agent.Registry { return s.agents }

// ServerID returns this instance's identifier.
func (s *Server) ServerID() string { return s.serverID }

// ServeGRPC serves agent connections on ln until Shutdown.
func (s *Server) ServeGRPC(ln net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("gRPC server listening", "addr", ln.Addr().String(), "server_id", s.serverID)
	return s.grpcServer.Serve(ln)
}

// setupListeners creates TCP listeners for gRPC and HTTP.
func (s *Server) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting collector",
		"grpc_addr", s.config.Server.GRPCAddr,
		"http_addr", s.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// startServers runs both servers in background goroutines.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		if err := s.ServeGRPC(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// Run starts the servers and blocks until ctx is cancelled or a server
// fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners()
	if err != nil {
		return err
	}

	errCh := s.startServers(grpcLn, httpLn)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops both servers, waiting for in-flight RPCs until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down collector")
	s.health.Shutdown()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	s.shutdownGRPCServer(ctx)
	s.dedupe.Close()

	return errors.Join(errs...)
}

func (s *Server) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// generateServerID creates a unique identifier for this collector instance.
func generateServerID() string {
	return "coven-collector-" + uuid.NewString()[:8]
}
