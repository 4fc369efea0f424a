// Package provider implements the HTTP client for the upstream LLM provider.
//
// The client speaks the provider's JSON API directly rather than going
// through an SDK, because the relay's degradation logic depends on seeing
// raw HTTP status codes and Retry-After headers. All failures are
// normalized into a small typed taxonomy (see errors.go) so callers never
// branch on status codes themselves.
package provider

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation turn sent to the provider.
type Turn struct {
	Role    Role
	Content string
}

// ChatRequest carries a fully composed prompt.
// The provider client treats it as opaque: no prompt logic lives here.
type ChatRequest struct {
	// System is the persona instruction, sent out-of-band from the turns.
	System string
	// Turns is the conversation history, oldest first, ending with the
	// user turn being answered.
	Turns []Turn

	Temperature     float32
	MaxOutputTokens int
}

// ChatResponse is the provider's answer to a chat request.
type ChatResponse struct {
	Text         string
	FinishReason string
	// Score is the provider's average log probability for the answer,
	// 0 when the provider omits it. Higher is more confident.
	Score float64
	Usage Usage
}

// Usage reports token accounting for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChunkHandler receives incremental text fragments during streaming.
// Returning an error stops the stream; the error is propagated to the
// caller of CompleteChatStream.
type ChunkHandler func(ctx context.Context, text string) error

// VoiceParams selects the synthesis voice.
type VoiceParams struct {
	Voice        string
	SpeakingRate float64
}

// SpeechResult is synthesized audio.
type SpeechResult struct {
	Audio    []byte
	MIMEType string
}

// DocumentPage is one page extracted from an uploaded document.
type DocumentPage struct {
	Number int
	Text   string
}

// ParsedDocument is the provider's page-level extraction of a document.
type ParsedDocument struct {
	Pages []DocumentPage
}
