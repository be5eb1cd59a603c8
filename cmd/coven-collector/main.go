// ABOUTME: Entry point for coven-collector, the receiving end of the telemetry transport
// ABOUTME: Serves agent gRPC connections plus health, agents and metrics over HTTP

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-transport/internal/auth"
	"github.com/2389/coven-transport/internal/collector"
	"github.com/2389/coven-transport/internal/config"
	"github.com/2389/coven-transport/internal/logging"
	"github.com/2389/coven-transport/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                              _ _           _
  ___ _____   _____ _ __         ___ ___  | | | ___  ___| |_ ___  _ __
 / __/ _ \ \ / / _ \ '_ \ _____ / __/ _ \ | | |/ _ \/ __| __/ _ \| '__|
| (_| (_) \ V /  __/ | | |_____| (_| (_) || | |  __/ (__| || (_) | |
 \___\___/ \_/ \___|_| |_|      \___\___/ |_|_|\___|\___|\__\___/|_|
`

// getConfigPath returns the path to the collector config file.
// Priority: COVEN_CONFIG env var > XDG_CONFIG_HOME/coven/collector.yaml > ~/.config/coven/collector.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "collector.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "collector.yaml")
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-collector <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                 Start the collector")
		fmt.Println("  health                Check collector health")
		fmt.Println("  agents                List connected agents")
		fmt.Println("  echo ID MESSAGE       Round-trip an echo command to an agent")
		fmt.Println("  token AGENT_ID [TTL]  Issue an agent token (requires auth.secret)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	case "echo":
		err = runEcho(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging)

	var handler collector.Handler = collector.LogHandler{Logger: logger.With("component", "handler")}
	if cfg.Store.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()
		handler = db
	}

	srv, err := collector.New(cfg, handler, logger)
	if err != nil {
		return fmt.Errorf("creating collector: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := call(ctx, http.MethodGet, fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	body, err := call(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/agents", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

func runEcho(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: coven-collector echo ID MESSAGE")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q := url.Values{"id": {args[0]}, "message": {args[1]}}
	body, err := call(ctx, http.MethodPost, fmt.Sprintf("http://%s/api/agents/echo?%s", cfg.Server.HTTPAddr, q.Encode()))
	if err != nil {
		return fmt.Errorf("echo failed: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runToken prints a JWT for an agent. TTL is a Go duration; omitted or 0
// issues a token that never expires.
func runToken(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: coven-collector token AGENT_ID [TTL]")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret is not configured")
	}

	var ttl time.Duration
	if len(args) == 2 {
		ttl, err = time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid TTL: %w", err)
		}
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.Secret)).Generate(args[0], ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// call performs one HTTP request and returns the body of a 200 response.
func call(ctx context.Context, method, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
