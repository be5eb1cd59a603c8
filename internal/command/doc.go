// Package command keeps an agent's command stream to the collector open.
//
// On connect the agent sends a Handshake listing the commands it supports;
// the collector then registers the stream under the connection's transport
// id and may push Commands at any time. Each Command is answered with a
// CommandReply carrying the same RequestID.
//
// Broken streams are reopened with exponential backoff. A session that
// stayed up for StableAfter resets the backoff.
package command
