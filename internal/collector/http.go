// ABOUTME: HTTP API for health checks, connected agents and the echo command.
// ABOUTME: Also mounts the prometheus registry when metrics are enabled.

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/coven-transport/internal/agent"
)

// echoTimeout bounds how long /api/agents/echo waits for the agent.
const echoTimeout = 10 * time.Second

// AgentResponse is the JSON shape of one entry in GET /api/agents.
type AgentResponse struct {
	TransportID     uint64   `json:"transport_id"`
	AgentID         string   `json:"agent_id"`
	ApplicationName string   `json:"application_name"`
	StartTime       int64    `json:"start_time"`
	RemoteAddr      string   `json:"remote_addr,omitempty"`
	Commands        []string `json:"commands"`
	ConnectedAt     string   `json:"connected_at"`
}

// EchoResponse is the JSON response for POST /api/agents/echo.
type EchoResponse struct {
	TransportID uint64 `json:"transport_id"`
	Message     string `json:"message"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/api/agents", s.handleListAgents)
	mux.HandleFunc("/api/agents/echo", s.handleEcho)
	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, s.registry.Handler())
	}
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one agent holds a command stream.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	n := s.agents.Len()
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", n)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conns := s.agents.List()
	response := make([]AgentResponse, 0, len(conns))
	for _, c := range conns {
		response = append(response, AgentResponse{
			TransportID:     c.TransportID,
			AgentID:         c.Header.AgentID,
			ApplicationName: c.Header.ApplicationName,
			StartTime:       c.Header.StartTime,
			RemoteAddr:      c.RemoteAddr,
			Commands:        c.Commands,
			ConnectedAt:     c.ConnectedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Coven-Server-Id", s.serverID)
	_ = json.NewEncoder(w).Encode(response)
}

// handleEcho handles POST /api/agents/echo?id=<transport id>&message=<text>.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "id must be a positive transport id", http.StatusBadRequest)
		return
	}
	message := r.URL.Query().Get("message")

	ctx, cancel := context.WithTimeout(r.Context(), echoTimeout)
	defer cancel()

	reply, err := s.agents.Echo(ctx, id, message)
	if err != nil {
		http.Error(w, err.Error(), echoStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(EchoResponse{TransportID: id, Message: reply})
}

func echoStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrUnsupportedCommand):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
