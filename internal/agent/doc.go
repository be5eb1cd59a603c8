// Package agent tracks the command streams of connected agents on the collector.
//
// # Registry
//
// The Registry maps a transport id, assigned by the collector's gRPC stats
// handler when a connection is accepted, to the Connection wrapping that
// connection's command stream:
//
//	reg := agent.NewRegistry(logger)
//
// Key operations:
//
//   - RegisterIfAbsent(id, conn): install conn unless id is taken
//   - Unregister(id): remove the entry on disconnect
//   - Get(id): look up without side effects
//   - Echo(ctx, id, msg): round-trip an echo command
//
// A second registration for a live id is refused and leaves the first entry
// in place. There is no removal path other than Unregister.
//
// # Request/Response Correlation
//
// Commands carry a per-connection RequestID. The Connection keeps a map of
// pending requests to reply channels:
//
//	pending map[uint32]chan *wire.CommandReply
//
// When the agent replies, HandleReply routes the reply to the waiting
// channel. Closing the connection wakes all waiters with ErrConnectionClosed.
//
// # Thread Safety
//
// Registry uses sync.Map and an atomic counter; Connection serializes stream
// sends and guards the pending map with a mutex.
package agent
