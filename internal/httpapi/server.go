// Package httpapi exposes the chat orchestration to the web front end.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"sim-chatter/internal/cache"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/storage"
)

const maxBodyBytes = 1 << 20

// Replier produces one chat turn. *conversation.Orchestrator implements it.
type Replier interface {
	GenerateReply(ctx context.Context, req conversation.Request) conversation.TurnResult
}

type Server struct {
	repliers      map[string]Replier
	defaultVendor string
	personas      *persona.Catalog
	recorder      storage.Recorder
	cache         *cache.Cache
	adminToken    string
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Server)

func WithRecorder(r storage.Recorder) Option { return func(s *Server) { s.recorder = r } }

func WithCache(c *cache.Cache) Option { return func(s *Server) { s.cache = c } }

func WithAdminToken(token string) Option { return func(s *Server) { s.adminToken = token } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

func NewServer(repliers map[string]Replier, defaultVendor string, personas *persona.Catalog, opts ...Option) *Server {
	s := &Server{
		repliers:      repliers,
		defaultVendor: defaultVendor,
		personas:      personas,
		cache:         cache.New(0),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed and logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/{vendor}", s.handleChat)
	mux.HandleFunc("POST /api/clean", s.handleClean)
	mux.HandleFunc("GET /api/personas", s.handlePersonas)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) vendors() []string {
	out := make([]string, 0, len(s.repliers))
	for name := range s.repliers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
