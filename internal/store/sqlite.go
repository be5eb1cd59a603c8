// ABOUTME: SQLite persistence for agent info and metadata dictionaries using modernc.org/sqlite
// ABOUTME: Implements the collector Handler so received telemetry lands in the database

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/wire"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore persists what agents report to the collector.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the database at path. Parent directories
// are created if needed and the schema is created if missing.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every pooled connection to :memory: would get its own empty database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			application_name TEXT NOT NULL,
			hostname TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			ports TEXT NOT NULL DEFAULT '',
			service_type INTEGER NOT NULL DEFAULT 0,
			pid INTEGER NOT NULL DEFAULT 0,
			agent_version TEXT NOT NULL DEFAULT '',
			vm_version TEXT NOT NULL DEFAULT '',
			container INTEGER NOT NULL DEFAULT 0,
			properties TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (agent_id, start_time)
		);

		CREATE INDEX IF NOT EXISTS idx_agents_application
			ON agents(application_name);

		CREATE TABLE IF NOT EXISTS api_metadata (
			agent_id TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			api_id INTEGER NOT NULL,
			api_info TEXT NOT NULL,
			line INTEGER NOT NULL DEFAULT 0,
			type INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (agent_id, start_time, api_id)
		);

		CREATE TABLE IF NOT EXISTS sql_metadata (
			agent_id TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			sql_id INTEGER NOT NULL,
			sql_text TEXT NOT NULL,
			PRIMARY KEY (agent_id, start_time, sql_id)
		);

		CREATE TABLE IF NOT EXISTS string_metadata (
			agent_id TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			string_id INTEGER NOT NULL,
			string_value TEXT NOT NULL,
			PRIMARY KEY (agent_id, start_time, string_id)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HandleAgentInfo upserts the agent record for the calling agent process.
func (s *SQLiteStore) HandleAgentInfo(ctx context.Context, h header.Header, info *wire.AgentInfo) error {
	props := info.Properties
	if props == nil {
		props = map[string]string{}
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encoding properties: %w", err)
	}

	query := `
		INSERT INTO agents (agent_id, start_time, application_name, hostname, ip, ports,
			service_type, pid, agent_version, vm_version, container, properties, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, start_time) DO UPDATE SET
			application_name = excluded.application_name,
			hostname = excluded.hostname,
			ip = excluded.ip,
			ports = excluded.ports,
			service_type = excluded.service_type,
			pid = excluded.pid,
			agent_version = excluded.agent_version,
			vm_version = excluded.vm_version,
			container = excluded.container,
			properties = excluded.properties,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		h.AgentID, h.StartTime, h.ApplicationName,
		info.Hostname, info.IP, info.Ports, info.ServiceType, info.PID,
		info.AgentVersion, info.VMVersion, info.Container, string(encoded),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving agent info: %w", err)
	}
	return nil
}

// HandleAPIMetaData stores one API dictionary entry. A repeated id replaces
// the earlier text.
func (s *SQLiteStore) HandleAPIMetaData(ctx context.Context, h header.Header, md *wire.APIMetaData) error {
	query := `
		INSERT INTO api_metadata (agent_id, start_time, api_id, api_info, line, type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, start_time, api_id) DO UPDATE SET
			api_info = excluded.api_info,
			line = excluded.line,
			type = excluded.type
	`
	if _, err := s.db.ExecContext(ctx, query, h.AgentID, h.StartTime, md.APIID, md.APIInfo, md.Line, md.Type); err != nil {
		return fmt.Errorf("saving api metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HandleSQLMetaData(ctx context.Context, h header.Header, md *wire.SQLMetaData) error {
	query := `
		INSERT INTO sql_metadata (agent_id, start_time, sql_id, sql_text)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (agent_id, start_time, sql_id) DO UPDATE SET sql_text = excluded.sql_text
	`
	if _, err := s.db.ExecContext(ctx, query, h.AgentID, h.StartTime, md.SQLID, md.SQL); err != nil {
		return fmt.Errorf("saving sql metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HandleStringMetaData(ctx context.Context, h header.Header, md *wire.StringMetaData) error {
	query := `
		INSERT INTO string_metadata (agent_id, start_time, string_id, string_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (agent_id, start_time, string_id) DO UPDATE SET string_value = excluded.string_value
	`
	if _, err := s.db.ExecContext(ctx, query, h.AgentID, h.StartTime, md.StringID, md.StringValue); err != nil {
		return fmt.Errorf("saving string metadata: %w", err)
	}
	return nil
}

// GetAgent returns the record of one agent process.
func (s *SQLiteStore) GetAgent(ctx context.Context, a Agent) (*AgentRecord, error) {
	query := agentColumns + ` WHERE agent_id = ? AND start_time = ?`
	rec, err := scanAgent(s.db.QueryRowContext(ctx, query, a.AgentID, a.StartTime))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return rec, nil
}

// ListAgents returns agent records, most recently updated first.
// If limit is 0 or negative, all records are returned.
func (s *SQLiteStore) ListAgents(ctx context.Context, limit int) ([]*AgentRecord, error) {
	query := agentColumns + ` ORDER BY updated_at DESC, agent_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// LookupAPI resolves an API id reported by agent a.
func (s *SQLiteStore) LookupAPI(ctx context.Context, a Agent, id int32) (*APIRecord, error) {
	var rec APIRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT api_info, line, type FROM api_metadata WHERE agent_id = ? AND start_time = ? AND api_id = ?`,
		a.AgentID, a.StartTime, id,
	).Scan(&rec.Info, &rec.Line, &rec.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api metadata: %w", err)
	}
	return &rec, nil
}

// LookupSQL resolves a SQL id reported by agent a.
func (s *SQLiteStore) LookupSQL(ctx context.Context, a Agent, id int32) (string, error) {
	return s.lookupText(ctx, `SELECT sql_text FROM sql_metadata WHERE agent_id = ? AND start_time = ? AND sql_id = ?`, a, id)
}

// LookupString resolves a string id reported by agent a.
func (s *SQLiteStore) LookupString(ctx context.Context, a Agent, id int32) (string, error) {
	return s.lookupText(ctx, `SELECT string_value FROM string_metadata WHERE agent_id = ? AND start_time = ? AND string_id = ?`, a, id)
}

func (s *SQLiteStore) lookupText(ctx context.Context, query string, a Agent, id int32) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, query, a.AgentID, a.StartTime, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying metadata: %w", err)
	}
	return text, nil
}

const agentColumns = `
	SELECT agent_id, start_time, application_name, hostname, ip, ports, service_type,
		pid, agent_version, vm_version, container, properties, updated_at
	FROM agents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*AgentRecord, error) {
	var (
		rec          AgentRecord
		props        string
		updatedAtStr string
	)
	err := row.Scan(
		&rec.AgentID, &rec.StartTime, &rec.ApplicationName,
		&rec.Hostname, &rec.IP, &rec.Ports, &rec.ServiceType, &rec.PID,
		&rec.AgentVersion, &rec.VMVersion, &rec.Container, &props, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(props), &rec.Properties); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}
	return &rec, nil
}
