// Package server exposes the monitor API: session history, tool usage,
// and a websocket event feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chisel-dev/chisel/pkg/agent"
	"github.com/chisel-dev/chisel/pkg/events"
)

// Server serves the monitor REST API and event websocket.
type Server struct {
	agent *agent.Agent
	bus   *events.Bus
	srv   *http.Server
}

// New creates a new Server.
func New(a *agent.Agent, bus *events.Bus) *Server {
	return &Server{agent: a, bus: bus}
}

// Start starts the HTTP server and blocks.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("POST /api/compact", s.handleCompact)
	mux.HandleFunc("/ws/events", s.handleEventsWebSocket)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(mux),
	}

	slog.Info("Starting monitor server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.agent.History()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"messages":         hist.Messages(),
		"rounds":           hist.RoundsCount(),
		"estimated_tokens": hist.EstimateContextTokens(""),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"tools": s.agent.Usage(),
	})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	res := s.agent.History().Compact(r.Context())
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
