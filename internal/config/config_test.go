// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"
  keepalive_time: "20s"
  keepalive_timeout: "4s"

sender:
  address: "collector-a:9991,collector-b:9991"
  agent_id: "agent-7"
  application_name: "billing"
  queue_size: 100
  retry_delay: "2s"
  max_attempts: 5
  call_timeout: "3s"
  compression: "zstd"
  command_stream: false

dedupe:
  ttl: "5m"
  max_entries: 500

store:
  path: "/var/lib/coven/collector.db"

auth:
  secret: "0123456789abcdef0123"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.KeepaliveTime != 20*time.Second {
		t.Errorf("Server.KeepaliveTime = %v, want %v", cfg.Server.KeepaliveTime, 20*time.Second)
	}
	if cfg.Server.KeepaliveTimeout != 4*time.Second {
		t.Errorf("Server.KeepaliveTimeout = %v, want %v", cfg.Server.KeepaliveTimeout, 4*time.Second)
	}

	if cfg.Sender.Address != "collector-a:9991,collector-b:9991" {
		t.Errorf("Sender.Address = %q", cfg.Sender.Address)
	}
	if cfg.Sender.AgentID != "agent-7" {
		t.Errorf("Sender.AgentID = %q, want %q", cfg.Sender.AgentID, "agent-7")
	}
	if cfg.Sender.QueueSize != 100 {
		t.Errorf("Sender.QueueSize = %d, want 100", cfg.Sender.QueueSize)
	}
	if cfg.Sender.RetryDelay != 2*time.Second {
		t.Errorf("Sender.RetryDelay = %v, want %v", cfg.Sender.RetryDelay, 2*time.Second)
	}
	if cfg.Sender.MaxAttempts != 5 {
		t.Errorf("Sender.MaxAttempts = %d, want 5", cfg.Sender.MaxAttempts)
	}
	if cfg.Sender.CallTimeout != 3*time.Second {
		t.Errorf("Sender.CallTimeout = %v, want %v", cfg.Sender.CallTimeout, 3*time.Second)
	}
	if cfg.Auth.Secret != "0123456789abcdef0123" {
		t.Errorf("Auth.Secret = %q", cfg.Auth.Secret)
	}
	if cfg.Store.Path != "/var/lib/coven/collector.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Sender.Compression != "zstd" {
		t.Errorf("Sender.Compression = %q, want %q", cfg.Sender.Compression, "zstd")
	}
	if cfg.Sender.CommandStreamEnabled() {
		t.Error("Sender.CommandStreamEnabled() = true, want false")
	}

	if cfg.Dedupe.TTL != 5*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, 5*time.Minute)
	}
	if cfg.Dedupe.MaxEntries != 500 {
		t.Errorf("Dedupe.MaxEntries = %d, want 500", cfg.Dedupe.MaxEntries)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "agent.toml", `
[sender]
address = "localhost:9991"
application_name = "checkout"
max_attempts = 2
retry_delay = "500ms"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sender.ApplicationName != "checkout" {
		t.Errorf("Sender.ApplicationName = %q, want %q", cfg.Sender.ApplicationName, "checkout")
	}
	if cfg.Sender.MaxAttempts != 2 {
		t.Errorf("Sender.MaxAttempts = %d, want 2", cfg.Sender.MaxAttempts)
	}
	if cfg.Sender.RetryDelay != 500*time.Millisecond {
		t.Errorf("Sender.RetryDelay = %v, want %v", cfg.Sender.RetryDelay, 500*time.Millisecond)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if !cfg.Sender.CommandStreamEnabled() {
		t.Error("Sender.CommandStreamEnabled() = false, want true when unset")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COLLECTOR_ADDR", "collector.internal:9991")
	t.Setenv("TEST_AGENT_ID", "agent-from-env")

	configPath := writeConfig(t, "config.yaml", `
sender:
  address: "${TEST_COLLECTOR_ADDR}"
  agent_id: "${TEST_AGENT_ID}"
  application_name: "app"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sender.Address != "collector.internal:9991" {
		t.Errorf("Sender.Address = %q, want %q", cfg.Sender.Address, "collector.internal:9991")
	}
	if cfg.Sender.AgentID != "agent-from-env" {
		t.Errorf("Sender.AgentID = %q, want %q", cfg.Sender.AgentID, "agent-from-env")
	}
}

func TestLoad_EnvVarNotSet(t *testing.T) {
	os.Unsetenv("NONEXISTENT_AGENT_ID")

	cfg, err := Parse(`
sender:
  agent_id: "${NONEXISTENT_AGENT_ID}"
`, FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Sender.AgentID != "" {
		t.Errorf("Sender.AgentID = %q, want empty string", cfg.Sender.AgentID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Parse("", FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := Default()
	if cfg.Server.GRPCAddr != want.Server.GRPCAddr {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, want.Server.GRPCAddr)
	}
	if cfg.Sender.QueueSize != 5*1024 {
		t.Errorf("Sender.QueueSize = %d, want %d", cfg.Sender.QueueSize, 5*1024)
	}
	if cfg.Sender.RetryDelay != 10*time.Second {
		t.Errorf("Sender.RetryDelay = %v, want %v", cfg.Sender.RetryDelay, 10*time.Second)
	}
	if cfg.Sender.MaxAttempts != 3 {
		t.Errorf("Sender.MaxAttempts = %d, want 3", cfg.Sender.MaxAttempts)
	}
	if cfg.Sender.CallTimeout != 0 {
		t.Errorf("Sender.CallTimeout = %v, want 0", cfg.Sender.CallTimeout)
	}
	if cfg.Server.KeepaliveTime != 15*time.Second {
		t.Errorf("Server.KeepaliveTime = %v, want %v", cfg.Server.KeepaliveTime, 15*time.Second)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"retry delay", "sender:\n  retry_delay: \"soon\"\n", "sender.retry_delay"},
		{"keepalive", "server:\n  keepalive_time: \"10\"\n", "server.keepalive_time"},
		{"dedupe ttl", "dedupe:\n  ttl: \"1x\"\n", "dedupe.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content, FormatYAML)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad grpc addr", "server:\n  grpc_addr: \"no-port\"\n", "GRPCAddr"},
		{"negative queue", "sender:\n  queue_size: -1\n", "QueueSize"},
		{"unknown compression", "sender:\n  compression: \"brotli\"\n", "Compression"},
		{"negative retry delay", "sender:\n  retry_delay: \"-1s\"\n", "RetryDelay"},
		{"bad log level", "logging:\n  level: \"loud\"\n", "Level"},
		{"bad log format", "logging:\n  format: \"xml\"\n", "Format"},
		{"relative metrics path", "metrics:\n  path: \"metrics\"\n", "Path"},
		{"short auth secret", "auth:\n  secret: \"short\"\n", "Secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content, FormatYAML)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), "validating config") {
				t.Errorf("error %q is not a validation error", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "server:\n  grpc_addr: [unterminated\n")
	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", "[sender\naddress = 1\n")
	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"agent.toml":  FormatTOML,
		"AGENT.TOML":  FormatTOML,
		"config.yaml": FormatYAML,
		"config.yml":  FormatYAML,
		"config":      FormatYAML,
	}
	for path, want := range tests {
		if got := formatOf(path); got != want {
			t.Errorf("formatOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("ANOTHER_VAR", "another_value")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_VAR}", "test_value"},
		{"prefix_${TEST_VAR}_suffix", "prefix_test_value_suffix"},
		{"${TEST_VAR} and ${ANOTHER_VAR}", "test_value and another_value"},
		{"no vars here", "no vars here"},
		{"${UNSET_VAR_12345}", ""},
		{"$NOT_EXPANDED", "$NOT_EXPANDED"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
