// ABOUTME: Demo agent that reports itself and sample metadata to a collector.
// ABOUTME: Usage: coven-agent [--config agent.yaml] [--addr localhost:9991] [--id web-01] [--app billing]
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/coven-transport/internal/channel"
	"github.com/2389/coven-transport/internal/command"
	"github.com/2389/coven-transport/internal/config"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/logging"
	"github.com/2389/coven-transport/internal/metrics"
	"github.com/2389/coven-transport/internal/sender"
	"github.com/2389/coven-transport/internal/telemetry"
)

var version = "dev"

type options struct {
	configPath  string
	addr        string
	agentID     string
	appName     string
	samples     int
	metricsAddr string
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("coven-agent", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML or TOML config file")
	flags.StringVar(&opts.addr, "addr", "", "collector address (host:port, comma separated list, or gRPC target)")
	flags.StringVar(&opts.agentID, "id", "", "agent id (default: config or a generated id)")
	flags.StringVar(&opts.appName, "app", "", "application name")
	flags.IntVar(&opts.samples, "samples", 3, "sample entries to send per metadata family")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if err == nil {
			cfg = loaded
		}
	}
	if opts.addr != "" {
		cfg.Sender.Address = opts.addr
	}
	if opts.agentID != "" {
		cfg.Sender.AgentID = opts.agentID
	}
	if opts.appName != "" {
		cfg.Sender.ApplicationName = opts.appName
	}
	if cfg.Sender.AgentID == "" {
		cfg.Sender.AgentID = "agent-" + uuid.NewString()[:8]
	}
	return cfg, cfg.Validate()
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	sc := cfg.Sender
	factory := channel.NewGRPCFactory(channel.GRPCOptions{
		Header: header.Header{
			AgentID:         sc.AgentID,
			ApplicationName: sc.ApplicationName,
			StartTime:       start.UnixMilli(),
		},
		Token:       sc.Token,
		Compression: sc.Compression,
		Logger:      logger.With("component", "channel"),
	})
	ch, err := channel.Open("default", sc.Address, factory, logger)
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}

	registry := metrics.NewRegistry(true)
	senderOpts := []sender.Option{
		sender.WithLogger(logger),
		sender.WithMetrics(metrics.NewSenderMetrics(registry.Registerer(), "default")),
	}
	if sc.CommandStreamEnabled() {
		senderOpts = append(senderOpts, sender.WithService(command.NewClient(ch.Command(), command.EchoHandler{}, command.Options{
			InitialBackoff: sc.ReconnectBackoff,
			Logger:         logger,
		})))
	}

	ds, err := sender.New(sender.Config{
		Name:              "default",
		QueueSize:         sc.QueueSize,
		RetryDelay:        sc.RetryDelay,
		MaxAttempts:       sc.MaxAttempts,
		CallbackWorkers:   sc.CallbackWorkers,
		CallbackQueueSize: sc.CallbackQueueSize,
		MaxInFlight:       sc.MaxInFlight,
		CallTimeout:       sc.CallTimeout,
	}, ch, telemetry.Converter{}, senderOpts...)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("starting sender: %w", err)
	}
	defer ds.Stop()
	metrics.Depths(registry.Registerer(), "default", ds.QueueLen, ds.RetryLen)

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: registry.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
	}

	logger.Info("agent started",
		"agent_id", sc.AgentID,
		"application", sc.ApplicationName,
		"collector", sc.Address,
		"version", version,
	)

	info := telemetry.CollectAgentInfo(version, start, map[string]string{"demo": "true"})
	ds.RequestWithListener(info, sender.ListenerFunc(func(o sender.Outcome) {
		logger.Info("agent info delivered", "outcome", o.Kind.String())
	}))
	sendSamples(ds, opts.samples, logger)

	<-ctx.Done()
	logger.Info("shutting down agent")
	return nil
}

// sendSamples submits n entries of each metadata family.
func sendSamples(ds *sender.DataSender, n int, logger *slog.Logger) {
	for i := range n {
		id := int32(i + 1)
		ok := ds.Request(telemetry.APIMetadata{ID: id, Info: fmt.Sprintf("demo.Handler.Serve%d()", id), Line: 10 * id})
		ok = ds.Request(telemetry.SQLMetadata{ID: id, SQL: fmt.Sprintf("SELECT * FROM demo WHERE id = %d", id)}) && ok
		ok = ds.Request(telemetry.StringMetadata{ID: id, Value: fmt.Sprintf("demo-string-%d", id)}) && ok
		if !ok {
			logger.Warn("sample not admitted", "id", id)
		}
	}
}
