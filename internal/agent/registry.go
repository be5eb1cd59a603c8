// ABOUTME: Connection registry mapping transport ids to live agent connections.
// ABOUTME: Put-if-absent registration, removal on disconnect, command dispatch by id.

package agent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/2389/coven-transport/internal/wire"
)

var (
	// ErrInvalidTransportID indicates a missing transport id or handle.
	ErrInvalidTransportID = errors.New("transport id and connection are required")

	// ErrAgentNotFound indicates no connection is registered for the id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUnsupportedCommand indicates the agent did not announce the command.
	ErrUnsupportedCommand = errors.New("command not supported by agent")
)

// Registry tracks the command streams of connected agents by transport id.
// At most one connection is registered per id.
type Registry struct {
	entries sync.Map // uint64 -> *Connection
	count   atomic.Int64
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{logger: logger}
}

// RegisterIfAbsent installs conn under id unless an entry already exists.
// It reports whether conn was installed. id 0 is reserved for "unassigned"
// and, like a nil conn, fails with ErrInvalidTransportID.
func (r *Registry) RegisterIfAbsent(id uint64, conn *Connection) (bool, error) {
	if id == 0 || conn == nil {
		return false, ErrInvalidTransportID
	}

	if _, loaded := r.entries.LoadOrStore(id, conn); loaded {
		return false, nil
	}
	total := r.count.Add(1)
	r.logger.Info("=== AGENT CONNECTED ===",
		"transport_id", id,
		"agent_id", conn.Header.AgentID,
		"application", conn.Header.ApplicationName,
		"commands", conn.Commands,
		"total_agents", total,
	)
	return true, nil
}

// Unregister removes the entry for id. It is a no-op when none exists.
func (r *Registry) Unregister(id uint64) {
	v, loaded := r.entries.LoadAndDelete(id)
	if !loaded {
		return
	}
	conn := v.(*Connection)
	conn.Close()
	total := r.count.Add(-1)
	r.logger.Info("=== AGENT DISCONNECTED ===",
		"transport_id", id,
		"agent_id", conn.Header.AgentID,
		"total_agents", total,
	)
}

// Get returns the connection registered for id.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

// Len reports the number of registered connections. The counter trails the
// map by one operation, so a racing Unregister may dip it below zero.
func (r *Registry) Len() int {
	if n := r.count.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// List returns registered connections ordered by transport id.
func (r *Registry) List() []*Connection {
	var conns []*Connection
	r.entries.Range(func(_, v any) bool {
		conns = append(conns, v.(*Connection))
		return true
	})
	slices.SortFunc(conns, func(a, b *Connection) int {
		return cmp.Compare(a.TransportID, b.TransportID)
	})
	return conns
}

// Echo sends an echo command to the agent behind id and waits for its reply.
func (r *Registry) Echo(ctx context.Context, id uint64, message string) (string, error) {
	conn, ok := r.Get(id)
	if !ok {
		return "", ErrAgentNotFound
	}
	if !conn.Supports(wire.CommandEcho) {
		return "", ErrUnsupportedCommand
	}

	reqID, replies := conn.CreateRequest()
	defer conn.CloseRequest(reqID)

	if err := conn.Send(&wire.Command{RequestID: reqID, Echo: &wire.Echo{Message: message}}); err != nil {
		return "", fmt.Errorf("sending echo: %w", err)
	}
	r.logger.Debug("command sent to agent", "transport_id", id, "request_id", reqID)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-conn.Done():
		return "", ErrConnectionClosed
	case reply := <-replies:
		if reply.Error != "" {
			return "", fmt.Errorf("agent: %s", reply.Error)
		}
		if reply.Echo == nil {
			return "", errors.New("agent replied without echo payload")
		}
		return reply.Echo.Message, nil
	}
}
