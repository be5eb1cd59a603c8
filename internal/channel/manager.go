// ABOUTME: Connection lifecycle manager owning the single channel of a sender instance
// ABOUTME: Builds the channel through a Factory, derives typed stubs once, closes idempotently

package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"

	"github.com/2389/coven-transport/internal/rpc"
)

// Conn is a network channel: something stubs can call through, and close.
type Conn interface {
	grpc.ClientConnInterface
	Close() error
}

// Factory builds channels. Close releases whatever the factory owns
// (resolvers, still-open channels) and is called after the channel is closed.
type Factory interface {
	Build(name, endpoint string) (Conn, error)
	Close() error
}

// Manager owns exactly one channel and the stubs bound to it.
type Manager struct {
	name     string
	endpoint string
	conn     Conn
	factory  Factory
	logger   *slog.Logger

	agent    rpc.AgentClient
	metadata rpc.MetadataClient
	command  rpc.CommandClient

	closeOnce sync.Once
	closeErr  error
}

// Open builds the channel to endpoint and derives the stubs. On failure the
// factory is closed before returning.
func Open(name, endpoint string, factory Factory, logger *slog.Logger) (*Manager, error) {
	if factory == nil {
		return nil, errors.New("channel factory is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "channel", "name", name)

	conn, err := factory.Build(name, endpoint)
	if err != nil {
		if cerr := factory.Close(); cerr != nil {
			logger.Warn("closing factory after failed open", "error", cerr)
		}
		return nil, fmt.Errorf("building channel to %s: %w", endpoint, err)
	}

	logger.Info("channel opened", "endpoint", endpoint)
	return &Manager{
		name:     name,
		endpoint: endpoint,
		conn:     conn,
		factory:  factory,
		logger:   logger,
		agent:    rpc.NewAgentClient(conn),
		metadata: rpc.NewMetadataClient(conn),
		command:  rpc.NewCommandClient(conn),
	}, nil
}

// Endpoint reports the endpoint the channel was opened against.
func (m *Manager) Endpoint() string { return m.endpoint }

// Conn returns the underlying connection.
func (m *Manager) Conn() Conn { return m.conn }

// Agent returns the agent-info stub.
func (m *Manager) Agent() rpc.AgentClient { return m.agent }

// Metadata returns the metadata stub.
func (m *Manager) Metadata() rpc.MetadataClient { return m.metadata }

// Command returns the command-stream stub.
func (m *Manager) Command() rpc.CommandClient { return m.command }

// Close closes the channel, then the factory. Safe to call more than once
// and on a nil Manager.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		var errs []error
		if err := m.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing channel: %w", err))
		}
		if err := m.factory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing factory: %w", err))
		}
		m.closeErr = errors.Join(errs...)
		m.logger.Info("channel closed", "endpoint", m.endpoint)
	})
	return m.closeErr
}
