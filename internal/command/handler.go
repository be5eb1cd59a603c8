// ABOUTME: Built-in command handler answering echo commands
// ABOUTME: Unknown commands get an error reply instead of breaking the stream

package command

import (
	"context"

	"github.com/2389/coven-transport/internal/wire"
)

// EchoHandler bounces echo commands back unchanged.
type EchoHandler struct{}

// Supported implements Handler.
func (EchoHandler) Supported() []string { return []string{wire.CommandEcho} }

// Handle implements Handler.
func (EchoHandler) Handle(_ context.Context, cmd *wire.Command) *wire.CommandReply {
	if cmd.Echo == nil {
		return &wire.CommandReply{Error: "unsupported command"}
	}
	return &wire.CommandReply{Echo: &wire.Echo{Message: cmd.Echo.Message}}
}
