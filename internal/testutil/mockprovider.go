// Package testutil provides deterministic test doubles for the
// provider surface.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/studymate/tutor-relay/internal/provider"
)

// MockProvider provides deterministic chat responses for testing.
// It matches the last user turn against registered patterns and
// returns the corresponding response or scripted failure.
//
// Thread-safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	failure  error
	calls    []MockCall
}

type mockRule struct {
	pattern  string // substring match in last user turn, lowercase
	response string
	chunks   []string // streaming chunk boundaries, nil = single chunk
	err      error
}

// MockCall records a single call to the mock provider.
type MockCall struct {
	LastUserTurn string
	Streaming    bool
}

// NewMockProvider creates a mock with the given fallback response,
// returned when no pattern matches.
func NewMockProvider(fallbackResponse string) *MockProvider {
	return &MockProvider{fallback: fallbackResponse}
}

// AddResponse registers a pattern-response pair. Patterns match
// case-insensitively against the last user turn; first match wins.
func (m *MockProvider) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// AddChunkedResponse registers a response with explicit streaming
// chunk boundaries.
func (m *MockProvider) AddChunkedResponse(pattern string, chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: strings.Join(chunks, ""),
		chunks:   chunks,
	})
}

// AddFailure registers a pattern that triggers the given error.
func (m *MockProvider) AddFailure(pattern string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), err: err})
}

// AddStreamFailure registers a pattern that streams the given chunks
// and then fails with err, simulating a mid-stream transport error.
func (m *MockProvider) AddStreamFailure(pattern string, err error, chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		chunks:  chunks,
		err:     err,
	})
}

// FailAll makes every call fail with err until cleared with nil.
func (m *MockProvider) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Calls returns a copy of all recorded calls.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount returns how many calls were recorded.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and the global failure, keeping rules.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.failure = nil
}

// CompleteChat implements the provider chat surface.
func (m *MockProvider) CompleteChat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	rule, err := m.match(req, false)
	if err != nil {
		return nil, err
	}
	if rule.err != nil {
		return nil, rule.err
	}
	return &provider.ChatResponse{Text: rule.response, FinishReason: "STOP", Score: -0.1}, nil
}

// CompleteChatStream implements the streaming chat surface, feeding
// fn one chunk at a time. Rules registered with AddStreamFailure
// deliver their chunks before failing.
func (m *MockProvider) CompleteChatStream(ctx context.Context, req *provider.ChatRequest, fn provider.ChunkHandler) (*provider.ChatResponse, error) {
	rule, err := m.match(req, true)
	if err != nil {
		return nil, err
	}
	if rule.err != nil && len(rule.chunks) == 0 {
		return nil, rule.err
	}

	chunks := rule.chunks
	if chunks == nil {
		chunks = []string{rule.response}
	}
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := fn(ctx, chunk); err != nil {
			return nil, err
		}
	}
	if rule.err != nil {
		return nil, rule.err
	}
	return &provider.ChatResponse{Text: rule.response, FinishReason: "STOP"}, nil
}

// match records the call and resolves the applicable rule.
func (m *MockProvider) match(req *provider.ChatRequest, streaming bool) (mockRule, error) {
	var lastUser string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == provider.RoleUser {
			lastUser = req.Turns[i].Content
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{LastUserTurn: lastUser, Streaming: streaming})

	if m.failure != nil {
		return mockRule{}, m.failure
	}

	lower := strings.ToLower(lastUser)
	for _, r := range m.rules {
		if strings.Contains(lower, r.pattern) {
			return r, nil
		}
	}
	return mockRule{response: m.fallback}, nil
}
