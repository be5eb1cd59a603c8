// ABOUTME: Represents one agent's live command stream on the collector.
// ABOUTME: Sends commands and routes replies back to waiters by request ID.

package agent

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/rpc"
	"github.com/2389/coven-transport/internal/wire"
)

// ErrConnectionClosed is returned to waiters when the stream goes away.
var ErrConnectionClosed = errors.New("agent connection closed")

// ConnectionParams holds the parameters for creating a new Connection.
type ConnectionParams struct {
	TransportID uint64
	Header      header.Header
	Commands    []string
	RemoteAddr  string
	Stream      rpc.Command_CommandStreamServer
	Logger      *slog.Logger
}

// Connection is the server-side handle for one agent connection.
type Connection struct {
	TransportID uint64
	Header      header.Header
	Commands    []string
	RemoteAddr  string
	ConnectedAt time.Time

	stream rpc.Command_CommandStreamServer
	sendMu sync.Mutex

	nextID  atomic.Uint32
	pending map[uint32]chan *wire.CommandReply
	mu      sync.RWMutex

	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewConnection creates a Connection around an established command stream.
func NewConnection(p ConnectionParams) *Connection {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connection{
		TransportID: p.TransportID,
		Header:      p.Header,
		Commands:    p.Commands,
		RemoteAddr:  p.RemoteAddr,
		ConnectedAt: time.Now(),
		stream:      p.Stream,
		pending:     make(map[uint32]chan *wire.CommandReply),
		closed:      make(chan struct{}),
		logger:      logger,
	}
}

// Supports reports whether the agent announced command name.
func (c *Connection) Supports(name string) bool {
	return slices.Contains(c.Commands, name)
}

// Send transmits a command on the stream. gRPC streams allow one sender at
// a time, so sends are serialized.
func (c *Connection) Send(cmd *wire.Command) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.stream.Send(cmd)
}

// CreateRequest allocates a request ID and a channel for its reply.
// The caller must call CloseRequest when done waiting.
func (c *Connection) CreateRequest() (uint32, <-chan *wire.CommandReply) {
	id := c.nextID.Add(1)
	ch := make(chan *wire.CommandReply, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return id, ch
}

// CloseRequest forgets a pending request.
func (c *Connection) CloseRequest(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// HandleReply routes a reply to the request waiting for it. Replies for
// unknown requests are logged and discarded.
func (c *Connection) HandleReply(reply *wire.CommandReply) {
	c.mu.RLock()
	ch, ok := c.pending[reply.RequestID]
	c.mu.RUnlock()

	if !ok {
		c.logger.Warn("received reply for unknown request",
			"request_id", reply.RequestID,
			"transport_id", c.TransportID,
		)
		return
	}

	// Non-blocking: a second reply for the same request is dropped.
	select {
	case ch <- reply:
	default:
		c.logger.Warn("duplicate reply dropped",
			"request_id", reply.RequestID,
			"transport_id", c.TransportID,
		)
	}
}

// Close marks the connection gone and wakes every waiter.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }
