package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/provider"
)

// MediaClient is the slice of the provider surface the media endpoints
// need. Defined here so tests can substitute a mock.
type MediaClient interface {
	SynthesizeSpeech(ctx context.Context, text string, params provider.VoiceParams) (*provider.SpeechResult, error)
	ParseDocument(ctx context.Context, data []byte, mimeType string) (*provider.ParsedDocument, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// writeMediaError maps media relay errors onto HTTP responses. Unlike
// chat, media endpoints have no fallback: provider unavailability
// surfaces as 502/503 for the caller to handle.
func writeMediaError(w http.ResponseWriter, err error, logger log.Logger) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if ue, ok := provider.IsUnavailable(err); ok {
		switch ue.Kind {
		case provider.KindRateLimited:
			if ue.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(ue.RetryAfter.Seconds())))
			}
			WriteError(w, http.StatusServiceUnavailable, "provider_rate_limited", "provider is rate limiting requests", logger)
		case provider.KindAuth:
			logger.Error("provider auth failure on media endpoint", "error", err)
			WriteError(w, http.StatusBadGateway, "provider_auth", "provider rejected credentials", logger)
		default:
			WriteError(w, http.StatusBadGateway, "provider_unavailable", "provider is unavailable", logger)
		}
		return
	}
	writeDomainError(w, err, logger)
}

// handleSpeech synthesizes speech for a text.
// POST /api/v1/speech
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req struct {
		Text         string  `json:"text"`
		Voice        string  `json:"voice"`
		SpeakingRate float64 `json:"speaking_rate"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}

	result, err := s.media.SynthesizeSpeech(r.Context(), req.Text, provider.VoiceParams{
		Voice:        req.Voice,
		SpeakingRate: req.SpeakingRate,
	})
	if err != nil {
		writeMediaError(w, err, logger)
		return
	}

	w.Header().Set("Content-Type", result.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Audio); err != nil {
		logger.Debug("failed to write audio body", "error", err)
	}
}

// handleParseDocument extracts page text from an uploaded document.
// POST /api/v1/documents
//
// The document arrives as the raw request body; Content-Type names its
// format. Size is enforced here and again in the provider client.
func (s *Server) handleParseDocument(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Content-Type header is required", logger)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxDocumentBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "document_too_large",
				"document exceeds the size limit", logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_input", "failed to read request body", logger)
		return
	}

	doc, err := s.media.ParseDocument(r.Context(), data, mimeType)
	if err != nil {
		writeMediaError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, doc, logger)
}

// handleEmbed returns the embedding vector for a text.
// POST /api/v1/embeddings
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err, logger)
		return
	}

	vec, err := s.media.Embed(r.Context(), req.Text)
	if err != nil {
		writeMediaError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Embedding []float32 `json:"embedding"`
	}{Embedding: vec}, logger)
}
