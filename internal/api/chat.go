package api

import (
	"net/http"

	"github.com/studymate/tutor-relay/internal/relay"
	"github.com/studymate/tutor-relay/internal/session"
)

// messageRequest is the body of a chat turn.
type messageRequest struct {
	Message string `json:"message"`
}

// turnResponse is the synchronous chat turn response.
type turnResponse struct {
	User      session.Message `json:"user"`
	Assistant session.Message `json:"assistant"`
	Score     float64         `json:"score,omitempty"`
}

// handleSendMessage runs one synchronous chat turn.
// POST /api/v1/sessions/{id}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}

	result, err := s.relay.SendMessage(r.Context(), id, req.Message)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		User:      result.User,
		Assistant: result.Assistant,
		Score:     result.Score,
	}, logger)
}

// handleStreamMessage runs one chat turn over SSE.
// POST /api/v1/sessions/{id}/messages/stream
//
// Wire contract: zero or more chunk events followed by one done event.
// A client disconnect mid-stream just ends the response; a provider
// failure mid-turn delivers the fallback answer as a final chunk so
// the student still gets a complete reply.
func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", logger)
		return
	}

	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}

	turn, err := s.relay.SendMessageStream(r.Context(), id, req.Message)
	if err != nil {
		writeDomainError(w, err, logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range turn.Relay.Chunks() {
		if err := writeEvent(w, flusher, EventChunk, ChunkPayload{Text: chunk}); err != nil {
			logger.Debug("client gone mid-stream", "session_id", id, "error", err)
			// Keep draining so the producer can finish the turn.
			for range turn.Relay.Chunks() {
			}
			break
		}
	}

	result := <-turn.Result
	if result.Aborted {
		// The student cancelled; the connection is already dead.
		return
	}

	if result.Outcome == relay.OutcomeDegraded {
		// The fallback answer replaces whatever the stream did not
		// deliver. It is a separate assistant message; send its full
		// text as one final chunk.
		if err := writeEvent(w, flusher, EventChunk, ChunkPayload{Text: result.Assistant.Content}); err != nil {
			return
		}
	}

	if err := writeEvent(w, flusher, EventDone, DonePayload{MessageID: result.Assistant.ID.String()}); err != nil {
		logger.Debug("failed to write done event", "session_id", id, "error", err)
	}
}
