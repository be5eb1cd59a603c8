// Package header carries agent identity on every agent-to-collector call.
//
// Agents attach three metadata entries to each call:
//
//	agentid          required, unique per agent process
//	applicationname  logical application the agent belongs to
//	starttime        agent start, unix milliseconds
//
// The client interceptors are installed by the channel factory; the server
// interceptors are installed by the collector and reject calls without an
// agent id with codes.InvalidArgument. Handlers read the decoded Header back
// with FromContext.
package header
