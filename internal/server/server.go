// Package server exposes the session manager over HTTP: the /api query
// and mutation surface, the /api/stream live channel, and the /health
// and /metrics ops endpoints. Every state change goes through the
// session manager, so the transition rules and broadcast side effects
// apply to API callers exactly as they do to the ingest watcher.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ksred/claude-session-manager/internal/broadcast"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/session"
	"github.com/ksred/claude-session-manager/internal/store"
)

// shutdownGrace bounds how long in-flight requests may run after the
// serve context is cancelled.
const shutdownGrace = 5 * time.Second

// Server provides the HTTP API for the session manager
type Server struct {
	sessions *session.Manager
	hub      *broadcast.Hub
	mux      *http.ServeMux
	addr     string
	log      *logging.Logger
}

// New wires the manager and hub into a routed server. hub may be nil
// when no live channel is served.
func New(sessions *session.Manager, hub *broadcast.Hub, addr string) *Server {
	s := &Server{
		sessions: sessions,
		hub:      hub,
		mux:      http.NewServeMux(),
		addr:     addr,
		log:      logging.New("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", metrics.Global().Handler())

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{id}", s.handleUpdateSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/restart", s.handleRestartSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/usage", s.handleRecordUsage)
	s.mux.HandleFunc("GET /api/sessions/{id}/activity", s.handleSessionActivity)
	s.mux.HandleFunc("POST /api/sessions/{id}/activity", s.handleAppendActivity)
	s.mux.HandleFunc("GET /api/activity", s.handleGlobalActivity)
	s.mux.HandleFunc("GET /api/projects", s.handleProjects)
	s.mux.HandleFunc("GET /api/metrics/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/metrics/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/stream", s.handleStream)
}

// Middleware for CORS
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware for JSON content type. Handlers serving another type
// (metrics exposition, the event stream) override it before writing.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// RequestID attaches a request id to the context and echoes it in the
// response so log lines and client reports can be correlated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", logging.GetRequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter captures the final status code for request accounting.
// It forwards Flush so the event stream keeps working behind it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument counts requests, times them, and converts handler panics
// into a 500 instead of killing the connection goroutine silently.
func (s *Server) instrument(next http.Handler) http.Handler {
	recovery := logging.NewRecoveryHandler("server")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		err := recovery.WrapError(func() error {
			next.ServeHTTP(sw, r)
			return nil
		})
		if err != nil {
			writeJSON(sw, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}

		metrics.Global().RecordRequest(sw.status)
		s.log.Debug("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  logging.GetRequestID(r.Context()),
		})
	})
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return RequestID(CORS(JSON(s.instrument(s.mux))))
}

// Serve runs the server until ctx is cancelled, then shuts down
// gracefully. Cancellation also cancels every request context, which is
// what unblocks long-lived stream connections.
func (s *Server) Serve(ctx context.Context) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		<-ctx.Done()
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", map[string]interface{}{"addr": s.addr})

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the store error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case store.IsValidation(err):
		status = http.StatusBadRequest
	case store.IsNotFound(err):
		status = http.StatusNotFound
	case store.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request_failed", map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": logging.GetRequestID(r.Context()),
		}, err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
