package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/studymate/tutor-relay/internal/log"
)

// maxErrorBodyBytes caps how much of an error response body we read
// for diagnostics.
const maxErrorBodyBytes = 8 << 10

// handlerError marks an error raised by the caller's ChunkHandler so it
// is not mistaken for a transport failure.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Config holds the settings the client needs from the application config.
type Config struct {
	Endpoint string
	APIKey   string

	ChatModel  string
	EmbedModel string
	Voice      string

	Temperature     float32
	MaxOutputTokens int

	// MaxInputChars bounds the total prompt size accepted per request.
	MaxInputChars int
	// MaxDocumentBytes bounds uploads to ParseDocument.
	MaxDocumentBytes int64

	RequestTimeout time.Duration

	// RequestsPerSecond smooths outbound traffic to the provider.
	// Zero disables client-side smoothing.
	RequestsPerSecond float64
}

// Client talks to the upstream provider over HTTP.
// Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// No client-level timeout: streaming responses outlive any
			// fixed budget. Per-request contexts carry the deadline.
		},
		limiter: limiter,
		logger:  logger.With("component", "provider"),
	}
}

// CompleteChat sends a chat request and waits for the full answer.
func (c *Client) CompleteChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := c.validateChat(req); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.Endpoint, c.cfg.ChatModel)

	var wireResp wireChatResponse
	if err := c.doJSON(ctx, url, buildWireChat(req), &wireResp); err != nil {
		return nil, err
	}
	resp, err := fromWireChat(&wireResp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("chat completed",
		"finish_reason", resp.FinishReason,
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}

// CompleteChatStream sends a chat request and delivers the answer
// incrementally through fn. The returned response holds the consolidated
// text and the final finish reason. Cancelling ctx closes the upstream
// connection and returns context.Canceled.
func (c *Client) CompleteChatStream(ctx context.Context, req *ChatRequest, fn ChunkHandler) (*ChatResponse, error) {
	if err := c.validateChat(req); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil chunk handler", ErrInvalidInput)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.cfg.Endpoint, c.cfg.ChatModel)

	httpResp, err := c.post(ctx, url, buildWireChat(req))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	final := &ChatResponse{}
	var sb strings.Builder

	parseErr := parseSSE(httpResp.Body, func(ev sseEvent) error {
		if ev.Data == "[DONE]" {
			return nil
		}
		var chunk wireChatResponse
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			// Skip malformed keep-alive payloads rather than killing the stream.
			c.logger.Debug("skipping unparseable stream event", "error", err)
			return nil
		}
		if len(chunk.Candidates) == 0 {
			return nil
		}
		cand := chunk.Candidates[0]
		if text := cand.Content.text(); text != "" {
			sb.WriteString(text)
			if err := fn(ctx, text); err != nil {
				return &handlerError{err: err}
			}
		}
		if cand.FinishReason != "" {
			final.FinishReason = cand.FinishReason
			final.Score = cand.AvgLogprobs
		}
		if chunk.UsageMetadata != nil {
			final.Usage = Usage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
			}
		}
		return nil
	})
	if parseErr != nil {
		// Handler errors pass through untouched so the caller can tell
		// its own abort from a transport failure.
		var he *handlerError
		if errors.As(parseErr, &he) {
			return nil, he.err
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		return nil, normalizeNetworkError(parseErr)
	}

	final.Text = sb.String()
	if final.Text == "" {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("stream produced no content")}
	}
	return final, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if len(text) > c.cfg.MaxInputChars {
		return nil, fmt.Errorf("%w: text exceeds %d chars", ErrInvalidInput, c.cfg.MaxInputChars)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent", c.cfg.Endpoint, c.cfg.EmbedModel)
	req := wireEmbedRequest{Content: wireContent{Parts: []wirePart{{Text: text}}}}

	var resp wireEmbedResponse
	if err := c.doJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("empty embedding")}
	}
	return resp.Embedding.Values, nil
}

// SynthesizeSpeech converts text to audio using the provider's TTS surface.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string, params VoiceParams) (*SpeechResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if len(text) > c.cfg.MaxInputChars {
		return nil, fmt.Errorf("%w: text exceeds %d chars", ErrInvalidInput, c.cfg.MaxInputChars)
	}

	voice := params.Voice
	if voice == "" {
		voice = c.cfg.Voice
	}

	var req wireSpeechRequest
	req.Input.Text = text
	req.Voice.Name = voice
	req.AudioConfig.AudioEncoding = "MP3"
	req.AudioConfig.SpeakingRate = params.SpeakingRate

	url := c.cfg.Endpoint + "/v1beta/text:synthesize"
	var resp wireSpeechResponse
	if err := c.doJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("decoding audio: %w", err)}
	}
	if len(audio) == 0 {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("empty audio")}
	}
	return &SpeechResult{Audio: audio, MIMEType: "audio/mpeg"}, nil
}

// ParseDocument sends a document to the provider for page-level text
// extraction.
func (c *Client) ParseDocument(ctx context.Context, data []byte, mimeType string) (*ParsedDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if int64(len(data)) > c.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrInvalidInput, c.cfg.MaxDocumentBytes)
	}
	if mimeType == "" {
		return nil, fmt.Errorf("%w: missing MIME type", ErrInvalidInput)
	}

	req := wireDocumentRequest{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}

	url := c.cfg.Endpoint + "/v1beta/documents:parse"
	var resp wireDocumentResponse
	if err := c.doJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	doc := &ParsedDocument{Pages: make([]DocumentPage, 0, len(resp.Pages))}
	for _, p := range resp.Pages {
		doc.Pages = append(doc.Pages, DocumentPage{Number: p.PageNumber, Text: p.Text})
	}
	return doc, nil
}

// validateChat rejects malformed or oversized chat requests before any
// network traffic.
func (c *Client) validateChat(req *ChatRequest) error {
	if req == nil || len(req.Turns) == 0 {
		return fmt.Errorf("%w: no turns", ErrInvalidInput)
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return fmt.Errorf("%w: last turn must be a non-empty user turn", ErrInvalidInput)
	}
	total := len(req.System)
	for _, t := range req.Turns {
		total += len(t.Content)
	}
	if c.cfg.MaxInputChars > 0 && total > c.cfg.MaxInputChars {
		return fmt.Errorf("%w: prompt size %d exceeds limit %d", ErrInvalidInput, total, c.cfg.MaxInputChars)
	}
	return nil
}

// buildWireChat converts the public request into the provider wire shape.
func buildWireChat(req *ChatRequest) wireChatRequest {
	wire := wireChatRequest{
		GenerationConfig: wireGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.System != "" {
		wire.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.System}}}
	}
	for _, t := range req.Turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		wire.Contents = append(wire.Contents, wireContent{
			Role:  role,
			Parts: []wirePart{{Text: t.Content}},
		})
	}
	return wire
}

// fromWireChat converts a provider response into the public shape.
func fromWireChat(wire *wireChatResponse) (*ChatResponse, error) {
	if len(wire.Candidates) == 0 {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("no candidates in response")}
	}
	cand := wire.Candidates[0]
	resp := &ChatResponse{
		Text:         cand.Content.text(),
		FinishReason: cand.FinishReason,
		Score:        cand.AvgLogprobs,
	}
	if resp.Text == "" {
		return nil, &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("empty candidate text")}
	}
	if wire.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  wire.UsageMetadata.PromptTokenCount,
			OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
		}
	}
	return resp, nil
}

// doJSON posts a JSON body and decodes a JSON response into out.
// The configured request timeout applies to the whole exchange.
// Streaming calls bypass this and run on the caller's context.
func (c *Client) doJSON(ctx context.Context, url string, in, out any) error {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	httpResp, err := c.post(ctx, url, in)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &UnavailableError{Kind: KindTransient, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// post sends a JSON request and returns the response on 2xx.
// Non-2xx statuses and transport failures come back as typed errors;
// the body is closed on every error path.
func (c *Client) post(ctx context.Context, url string, in any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, normalizeNetworkError(err)
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrInvalidInput, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrInvalidInput, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, normalizeNetworkError(err)
	}

	if statusErr := normalizeStatus(resp.StatusCode, resp.Header.Get("Retry-After")); statusErr != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		c.logger.Warn("provider request failed",
			"status", resp.StatusCode,
			"url", url,
			"body", string(snippet))
		return nil, statusErr
	}
	return resp, nil
}
