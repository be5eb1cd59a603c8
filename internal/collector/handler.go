// ABOUTME: Callback interface the collector hands decoded agent data to.
// ABOUTME: LogHandler is the default sink used by coven-collector serve.

package collector

import (
	"context"
	"log/slog"

	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/wire"
)

// Handler receives one inbound request per call. A returned error is sent
// back to the agent as an unsuccessful Result, which the agent retries.
type Handler interface {
	HandleAgentInfo(ctx context.Context, h header.Header, info *wire.AgentInfo) error
	HandleAPIMetaData(ctx context.Context, h header.Header, md *wire.APIMetaData) error
	HandleSQLMetaData(ctx context.Context, h header.Header, md *wire.SQLMetaData) error
	HandleStringMetaData(ctx context.Context, h header.Header, md *wire.StringMetaData) error
}

// LogHandler accepts everything and logs it.
type LogHandler struct {
	Logger *slog.Logger
}

func (l LogHandler) HandleAgentInfo(_ context.Context, h header.Header, info *wire.AgentInfo) error {
	l.Logger.Info("agent info",
		"agent", h.String(),
		"hostname", info.Hostname,
		"ip", info.IP,
		"pid", info.PID,
		"agent_version", info.AgentVersion,
		"container", info.Container,
	)
	return nil
}

func (l LogHandler) HandleAPIMetaData(_ context.Context, h header.Header, md *wire.APIMetaData) error {
	l.Logger.Debug("api metadata", "agent", h.String(), "api_id", md.APIID, "api_info", md.APIInfo, "line", md.Line)
	return nil
}

func (l LogHandler) HandleSQLMetaData(_ context.Context, h header.Header, md *wire.SQLMetaData) error {
	l.Logger.Debug("sql metadata", "agent", h.String(), "sql_id", md.SQLID, "sql", md.SQL)
	return nil
}

func (l LogHandler) HandleStringMetaData(_ context.Context, h header.Header, md *wire.StringMetaData) error {
	l.Logger.Debug("string metadata", "agent", h.String(), "string_id", md.StringID, "value", md.StringValue)
	return nil
}
