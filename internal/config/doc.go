// Package config handles configuration loading for coven-collector and
// coven-agent.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file. The format follows the
// file extension: ".toml" selects TOML, anything else is read as YAML. Both
// binaries share one Config; each reads the sections it needs.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sender:
//	  address: "${COVEN_COLLECTOR}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string, which
// then picks up the field's default.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sender:
//	  retry_delay: "10s"
//	  call_timeout: "5s"
//
// # Configuration Sections
//
// Collector:
//
//	server:
//	  grpc_addr: "0.0.0.0:9991"   # agent connections
//	  http_addr: "0.0.0.0:8080"   # health, agents API, metrics
//	  keepalive_time: "15s"
//	  keepalive_timeout: "5s"
//
//	dedupe:
//	  ttl: "10m"
//	  max_entries: 100000
//
//	store:
//	  path: "/var/lib/coven/collector.db"   # empty: log only
//
//	auth:
//	  secret: "${COVEN_JWT_SECRET}"   # empty: no agent auth
//
// Agent:
//
//	sender:
//	  address: "collector:9991"   # or "a:9991,b:9991" or a gRPC target URI
//	  agent_id: "web-01"          # defaults to a generated id
//	  application_name: "billing"
//	  queue_size: 5120
//	  retry_delay: "10s"
//	  max_attempts: 3
//	  compression: "zstd"         # gzip, zstd, lz4
//	  command_stream: true
//	  token: "${COVEN_AGENT_TOKEN}"   # from coven-collector token
//
// Both:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// After defaults are applied, Validate runs go-playground/validator over
// the struct tags: addresses must be host:port, sizes and delays positive,
// enumerations within their allowed values.
package config
