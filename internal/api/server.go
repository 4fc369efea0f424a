// Package api exposes the tutoring relay over HTTP: session lifecycle
// and chat on a JSON API, streaming turns over SSE, plus speech,
// document parsing and embedding endpoints relayed to the provider.
package api

import (
	"net/http"

	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/relay"
)

// Config carries the server's collaborators and HTTP tunables.
type Config struct {
	Relay *relay.Orchestrator
	Media MediaClient
	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string
	// TrustProxy enables X-Real-IP / X-Forwarded-For for rate limiting.
	TrustProxy bool
	// RatePerSecond and RateBurst tune the per-IP limiter. Zero values
	// fall back to 1 req/s with a burst of 10.
	RatePerSecond float64
	RateBurst     int
	// MaxDocumentBytes caps document uploads. Zero means 20MB.
	MaxDocumentBytes int64
}

// Server is the HTTP surface of the relay.
type Server struct {
	relay            *relay.Orchestrator
	media            MediaClient
	limiter          *rateLimiter
	trustProxy       bool
	corsOrigins      []string
	maxDocumentBytes int64
	logger           log.Logger
}

// NewServer creates the HTTP server surface.
func NewServer(cfg Config, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	maxDoc := cfg.MaxDocumentBytes
	if maxDoc <= 0 {
		maxDoc = 20 << 20
	}
	return &Server{
		relay:            cfg.Relay,
		media:            cfg.Media,
		limiter:          newRateLimiter(rps, burst),
		trustProxy:       cfg.TrustProxy,
		corsOrigins:      cfg.CORSOrigins,
		maxDocumentBytes: maxDoc,
		logger:           logger.With("component", "api"),
	}
}

// Handler builds the full HTTP handler: the API routes behind the
// middleware stack, with health probes mounted outside it so load
// balancer checks skip logging and rate limiting.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	api.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	api.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("GET /api/v1/sessions/{id}/export", s.handleExportSession)
	api.HandleFunc("POST /api/v1/sessions/{id}/messages", s.handleSendMessage)
	api.HandleFunc("POST /api/v1/sessions/{id}/messages/stream", s.handleStreamMessage)
	api.HandleFunc("POST /api/v1/sessions/{id}/page", s.handleAdvancePage)
	api.HandleFunc("GET /api/v1/sessions/{id}/suggestions", s.handleSuggestions)

	api.HandleFunc("POST /api/v1/speech", s.handleSpeech)
	api.HandleFunc("POST /api/v1/documents", s.handleParseDocument)
	api.HandleFunc("POST /api/v1/embeddings", s.handleEmbed)

	// Middleware executes outermost first: recovery wraps everything,
	// then request IDs, logging, CORS and finally rate limiting.
	var handler http.Handler = api
	handler = rateLimitMiddleware(s.limiter, s.trustProxy, s.logger)(handler)
	handler = corsMiddleware(s.corsOrigins)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(s.logger)(handler)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.HandleFunc("GET /ready", s.handleReady)
	root.Handle("/", handler)

	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}
