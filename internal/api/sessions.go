package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/provider"
	"github.com/studymate/tutor-relay/internal/session"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20 // 1MB

// pageRequest is the page context in create and advance requests.
type pageRequest struct {
	Title      string `json:"title"`
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

func (p pageRequest) toPage() session.Page {
	return session.Page{Title: p.Title, Number: p.PageNumber, Content: p.Content}
}

// decodeJSON decodes a size-limited JSON request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", provider.ErrInvalidInput)
	}
	return nil
}

// userID reads the authenticated user from the gateway-set header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// sessionID parses the path's session ID.
func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed session id", provider.ErrInvalidInput)
	}
	return id, nil
}

// handleCreateSession starts a tutoring session.
// POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	uid := userID(r)
	if uid == "" {
		WriteError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required", logger)
		return
	}

	var req struct {
		Page pageRequest `json:"page"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}
	if req.Page.PageNumber < 1 {
		WriteError(w, http.StatusBadRequest, "invalid_input", "page_number must be at least 1", logger)
		return
	}

	snap, err := s.relay.StartSession(uid, req.Page.toPage())
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusCreated, snap, logger)
}

// handleGetSession returns a session transcript.
// GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	snap, err := s.relay.GetSession(id)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, snap, logger)
}

// handleDeleteSession ends a session.
// DELETE /api/v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	s.relay.EndSession(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleExportSession returns the transcript as a downloadable file.
// GET /api/v1/sessions/{id}/export
func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	snap, err := s.relay.GetSession(id)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "session-"+snap.ID.String()+".json"))
	writeJSON(w, http.StatusOK, snap, logger)
}

// handleAdvancePage swaps the session's page context.
// POST /api/v1/sessions/{id}/page
func (s *Server) handleAdvancePage(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	var req struct {
		Page pageRequest `json:"page"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}
	if req.Page.PageNumber < 1 {
		WriteError(w, http.StatusBadRequest, "invalid_input", "page_number must be at least 1", logger)
		return
	}

	msg, err := s.relay.AdvancePage(id, req.Page.toPage())
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, msg, logger)
}

// handleSuggestions returns follow-up question suggestions.
// GET /api/v1/sessions/{id}/suggestions
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	suggestions, err := s.relay.Suggestions(r.Context(), id, r.URL.Query().Get("topic"))
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Suggestions []string `json:"suggestions"`
	}{Suggestions: suggestions}, logger)
}

func (s *Server) requestLogger(r *http.Request) log.Logger {
	return s.logger.With("request_id", requestIDFromContext(r.Context()))
}
