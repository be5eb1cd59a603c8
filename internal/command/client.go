// ABOUTME: Agent-side command stream client: handshake, serve commands, reconnect with backoff
// ABOUTME: Lifetime is bound to the data sender through Start/Stop

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-transport/internal/rpc"
	"github.com/2389/coven-transport/internal/wire"
)

// Handler executes commands pushed by the collector.
type Handler interface {
	// Supported lists command names announced in the handshake.
	Supported() []string
	// Handle executes cmd. The returned reply's RequestID is overwritten.
	Handle(ctx context.Context, cmd *wire.Command) *wire.CommandReply
}

// Options tunes reconnect behavior.
type Options struct {
	// InitialBackoff is the first reconnect delay; it grows up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// StableAfter is how long a session must last before the backoff resets.
	StableAfter time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.StableAfter <= 0 {
		o.StableAfter = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Client keeps a command stream open to the collector.
type Client struct {
	stub    rpc.CommandClient
	handler Handler
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	sessions int
}

// NewClient creates a client. Nothing happens until Start.
func NewClient(stub rpc.CommandClient, handler Handler, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		stub:    stub,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger.With("component", "command"),
	}
}

// Start launches the reconnect loop. Calling Start twice is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop ends the current session and waits for the loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sessions reports how many streams were opened, for diagnostics.
func (c *Client) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

func (c *Client) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	b := c.newBackoff()

	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.logger.Debug("command stream stopped")
			return
		}
		if time.Since(started) >= c.opts.StableAfter {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.logger.Info("command stream closed, reconnecting", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs one stream until it breaks.
func (c *Client) session(ctx context.Context) error {
	stream, err := c.stub.CommandStream(ctx)
	if err != nil {
		return fmt.Errorf("opening command stream: %w", err)
	}
	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()

	hello := &wire.CommandReply{Handshake: &wire.Handshake{SupportedCommands: c.handler.Supported()}}
	if err := stream.Send(hello); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}
	c.logger.Info("command stream established", "commands", c.handler.Supported())

	for {
		cmd, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				c.logger.Warn("collector refused duplicate command stream")
			}
			return fmt.Errorf("receiving command: %w", err)
		}

		reply := c.handler.Handle(ctx, cmd)
		if reply == nil {
			reply = &wire.CommandReply{}
		}
		reply.RequestID = cmd.RequestID
		if err := stream.Send(reply); err != nil {
			return fmt.Errorf("sending reply %d: %w", cmd.RequestID, err)
		}
	}
}
