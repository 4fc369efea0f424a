package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/provider"
	"github.com/studymate/tutor-relay/internal/session"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding, allowing a proper 500 when encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message}, logger)
}

// writeDomainError maps domain errors onto HTTP error responses.
// Raw provider failures never reach this path: the orchestrator turns
// them into degraded answers before the handler sees them.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	switch {
	case errors.Is(err, provider.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error(), logger)
	case errors.Is(err, session.ErrNotFound):
		WriteError(w, http.StatusNotFound, "session_not_found", "session not found or expired", logger)
	case errors.Is(err, session.ErrStoreFull):
		WriteError(w, http.StatusServiceUnavailable, "store_full", "too many active sessions, try again later", logger)
	default:
		logger.Error("unhandled request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
