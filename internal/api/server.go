// Package api serves the operator HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/validator"
)

// StatusProvider exposes validator state for monitoring.
type StatusProvider interface {
	IsRunning() bool
	Status() validator.Status
	Scores() []float64
	History() *validator.History
}

// Server is the HTTP API server.
type Server struct {
	addr     string         // addr is the HTTP listen address
	status   StatusProvider // status provides validator state
	metrics  http.Handler   // metrics serves /metrics when set
	server   *http.Server   // server is the underlying HTTP server
	listener net.Listener   // listener is bound by Start
}

// New creates a new HTTP API server. metrics may be nil.
func New(addr string, status StatusProvider, metrics http.Handler) *Server {
	return &Server{
		addr:    addr,
		status:  status,
		metrics: metrics,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /scores", s.handleScores)
	mux.HandleFunc("GET /scores/{uid}", s.handleScore)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Start binds the listen address and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", ln.Addr().String())

		if err := s.server.Serve(ln); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth reports 200 while the run loop is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.status == nil || !s.status.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "stopped",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	st := s.status.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"state":        st.State.String(),
		"step":         st.Step,
		"block":        st.Block,
		"size":         st.Size,
		"lastDispatch": st.LastDispatch,
		"submitting":   st.Submitting,
		"lastError":    st.LastError,
	})
}

// handleScores handles GET /scores requests.
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scores": finite(s.status.Scores()),
	})
}

// handleScore handles GET /scores/{uid} requests.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	scores := s.status.Scores()

	uid, err := parseUID(r.PathValue("uid"), len(scores))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var recent []float64
	if h := s.status.History(); h != nil {
		recent = h.Recent(uid)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uid":    uid,
		"score":  finite(scores[uid : uid+1])[0],
		"recent": finite(recent),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
