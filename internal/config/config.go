// ABOUTME: Configuration loading and parsing for the collector and the agent
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and tag validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var valid = validator.New()

// Config represents the complete configuration. The collector reads server,
// dedupe, store, auth, logging and metrics; the agent reads sender and logging.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Sender  SenderConfig  `yaml:"sender" toml:"sender"`
	Dedupe  DedupeConfig  `yaml:"dedupe" toml:"dedupe"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds collector listener configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr" validate:"required,hostname_port"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" validate:"required,hostname_port"`

	KeepaliveTime    time.Duration `yaml:"-" toml:"-" validate:"gt=0"`
	KeepaliveTimeout time.Duration `yaml:"-" toml:"-" validate:"gt=0"`

	KeepaliveTimeRaw    string `yaml:"keepalive_time" toml:"keepalive_time"`
	KeepaliveTimeoutRaw string `yaml:"keepalive_timeout" toml:"keepalive_timeout"`
}

// SenderConfig holds agent-side transport configuration
type SenderConfig struct {
	// Address is a host:port, a comma separated list of them, or a gRPC target URI.
	Address         string `yaml:"address" toml:"address" validate:"required"`
	AgentID         string `yaml:"agent_id" toml:"agent_id" validate:"omitempty,max=64"`
	ApplicationName string `yaml:"application_name" toml:"application_name" validate:"required,max=64"`

	QueueSize         int    `yaml:"queue_size" toml:"queue_size" validate:"gt=0"`
	MaxAttempts       int    `yaml:"max_attempts" toml:"max_attempts" validate:"gte=1"`
	CallbackWorkers   int    `yaml:"callback_workers" toml:"callback_workers" validate:"gte=1"`
	CallbackQueueSize int    `yaml:"callback_queue_size" toml:"callback_queue_size" validate:"gte=1"`
	MaxInFlight       int    `yaml:"max_in_flight" toml:"max_in_flight" validate:"gte=1"`
	Compression       string `yaml:"compression" toml:"compression" validate:"omitempty,oneof=gzip zstd lz4"`
	CommandStream     *bool  `yaml:"command_stream" toml:"command_stream"`
	// Token is the bearer token presented to a collector that requires auth.
	Token             string `yaml:"token" toml:"token"`

	RetryDelay       time.Duration `yaml:"-" toml:"-" validate:"gt=0"`
	CallTimeout      time.Duration `yaml:"-" toml:"-" validate:"gte=0"`
	ReconnectBackoff time.Duration `yaml:"-" toml:"-" validate:"gt=0"`

	RetryDelayRaw       string `yaml:"retry_delay" toml:"retry_delay"`
	CallTimeoutRaw      string `yaml:"call_timeout" toml:"call_timeout"`
	ReconnectBackoffRaw string `yaml:"reconnect_backoff" toml:"reconnect_backoff"`
}

// CommandStreamEnabled reports whether the agent opens a command stream.
// Unset means enabled.
func (s SenderConfig) CommandStreamEnabled() bool {
	return s.CommandStream == nil || *s.CommandStream
}

// StoreConfig selects where the collector persists agent info and metadata.
// An empty Path keeps nothing and only logs what arrives.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig enables JWT agent authentication on the collector. An empty
// Secret accepts every agent.
type AuthConfig struct {
	Secret string `yaml:"secret" toml:"secret" validate:"omitempty,min=16"`
}

// DedupeConfig holds the collector metadata dedupe window
type DedupeConfig struct {
	MaxEntries int `yaml:"max_entries" toml:"max_entries" validate:"gte=1"`

	TTL   time.Duration `yaml:"-" toml:"-" validate:"gt=0"`
	Sweep time.Duration `yaml:"-" toml:"-" validate:"gt=0"`

	TTLRaw   string `yaml:"ttl" toml:"ttl"`
	SweepRaw string `yaml:"sweep" toml:"sweep"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path" validate:"startswith=/"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(string(data), formatOf(path))
}

// Format names a configuration syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes, defaults and validates configuration text.
func Parse(text string, format Format) (*Config, error) {
	expanded := expandEnvVars(text)

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks struct tags on every section.
func (c *Config) Validate() error {
	return valid.Struct(c)
}

func applyDefaults(cfg *Config) {
	setString(&cfg.Server.GRPCAddr, "0.0.0.0:9991")
	setString(&cfg.Server.HTTPAddr, "0.0.0.0:8080")
	setDuration(&cfg.Server.KeepaliveTime, 15*time.Second)
	setDuration(&cfg.Server.KeepaliveTimeout, 5*time.Second)

	setString(&cfg.Sender.Address, "localhost:9991")
	setString(&cfg.Sender.ApplicationName, "default")
	setInt(&cfg.Sender.QueueSize, 5*1024)
	setInt(&cfg.Sender.MaxAttempts, 3)
	setInt(&cfg.Sender.CallbackWorkers, 1)
	setInt(&cfg.Sender.CallbackQueueSize, 1000)
	setInt(&cfg.Sender.MaxInFlight, 1024)
	setDuration(&cfg.Sender.RetryDelay, 10*time.Second)
	setDuration(&cfg.Sender.ReconnectBackoff, time.Second)

	setInt(&cfg.Dedupe.MaxEntries, 100_000)
	setDuration(&cfg.Dedupe.TTL, 10*time.Minute)
	setDuration(&cfg.Dedupe.Sweep, time.Minute)

	setString(&cfg.Logging.Level, "info")
	setString(&cfg.Logging.Format, "text")
	setString(&cfg.Metrics.Path, "/metrics")
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.keepalive_time", cfg.Server.KeepaliveTimeRaw, &cfg.Server.KeepaliveTime},
		{"server.keepalive_timeout", cfg.Server.KeepaliveTimeoutRaw, &cfg.Server.KeepaliveTimeout},
		{"sender.retry_delay", cfg.Sender.RetryDelayRaw, &cfg.Sender.RetryDelay},
		{"sender.call_timeout", cfg.Sender.CallTimeoutRaw, &cfg.Sender.CallTimeout},
		{"sender.reconnect_backoff", cfg.Sender.ReconnectBackoffRaw, &cfg.Sender.ReconnectBackoff},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
		{"dedupe.sweep", cfg.Dedupe.SweepRaw, &cfg.Dedupe.Sweep},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
