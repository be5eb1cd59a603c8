// ABOUTME: Record types and lookup errors for collector persistence
// ABOUTME: Agent records are keyed by agent id and start time; metadata adds a per-family id

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entry does not exist
var ErrNotFound = errors.New("not found")

// Agent identifies one agent process: the same agent id restarted gets a new
// start time and so a new record.
type Agent struct {
	AgentID   string
	StartTime int64 // unix millis
}

// AgentRecord is the latest agent info reported by one agent process.
type AgentRecord struct {
	Agent
	ApplicationName string
	Hostname        string
	IP              string
	Ports           string
	ServiceType     int32
	PID             int32
	AgentVersion    string
	VMVersion       string
	Container       bool
	Properties      map[string]string
	UpdatedAt       time.Time
}

// APIRecord is a stored API metadata entry.
type APIRecord struct {
	Info string
	Line int32
	Type int32
}
