// ABOUTME: Agent identity header carried as gRPC metadata on every agent call
// ABOUTME: Provides encode/decode plus WithHeader/FromContext for handlers

package header

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc/metadata"
)

// Metadata keys. gRPC lowercases keys on the wire, so these are lowercase too.
const (
	KeyAgentID         = "agentid"
	KeyApplicationName = "applicationname"
	KeyStartTime       = "starttime"
)

// ErrMissingAgentID indicates a call arrived without an agent id.
var ErrMissingAgentID = errors.New("agentid header is required")

// Header identifies the agent process behind a call.
type Header struct {
	AgentID         string
	ApplicationName string
	StartTime       int64 // agent start, unix millis
}

// String renders the header for logs.
func (h Header) String() string {
	return fmt.Sprintf("%s/%s@%d", h.ApplicationName, h.AgentID, h.StartTime)
}

// Pairs returns the header as metadata key/value pairs.
func (h Header) Pairs() []string {
	return []string{
		KeyAgentID, h.AgentID,
		KeyApplicationName, h.ApplicationName,
		KeyStartTime, strconv.FormatInt(h.StartTime, 10),
	}
}

// FromMetadata extracts a Header from incoming metadata.
// A missing agent id is an error; a missing start time decodes as zero.
func FromMetadata(md metadata.MD) (Header, error) {
	h := Header{
		AgentID:         first(md, KeyAgentID),
		ApplicationName: first(md, KeyApplicationName),
	}
	if h.AgentID == "" {
		return Header{}, ErrMissingAgentID
	}

	if raw := first(md, KeyStartTime); raw != "" {
		start, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Header{}, fmt.Errorf("parsing %s %q: %w", KeyStartTime, raw, err)
		}
		h.StartTime = start
	}
	return h, nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// headerContextKey is the key type for storing Header in context.Context.
type headerContextKey struct{}

// WithHeader returns a new context with the Header attached.
func WithHeader(ctx context.Context, h Header) context.Context {
	return context.WithValue(ctx, headerContextKey{}, h)
}

// FromContext retrieves the Header from the context.
func FromContext(ctx context.Context) (Header, bool) {
	h, ok := ctx.Value(headerContextKey{}).(Header)
	return h, ok
}
