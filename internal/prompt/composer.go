// Package prompt composes provider chat requests from session state.
//
// Composition is a pure function: identical input always produces a
// byte-identical request, which keeps turns reproducible and testable.
package prompt

import (
	"fmt"

	"github.com/studymate/tutor-relay/internal/provider"
)

// Composer builds chat requests. All knobs are fixed at construction,
// so Compose stays deterministic.
type Composer struct {
	// Locale selects persona and template language.
	Locale string
	// PageContextChars bounds the page content embedded per request,
	// counted in runes.
	PageContextChars int
	// Sampling parameters copied into every request.
	Temperature     float32
	MaxOutputTokens int
}

// Input is everything Compose needs from the caller.
type Input struct {
	Title       string
	PageNumber  int
	PageContent string
	// History is the session's prior turns in append order.
	History []provider.Turn
	// UserText is the new user turn, already validated non-empty.
	UserText string
}

// Compose builds the provider request: one system persona turn, the
// truncated page context as the opening user turn, the history in
// append order, and the new user turn last.
func (c *Composer) Compose(in Input) *provider.ChatRequest {
	content := TruncateRunes(in.PageContent, c.PageContextChars)
	contextTurn := fmt.Sprintf(contextHeader(c.Locale), in.Title, in.PageNumber, content)

	turns := make([]provider.Turn, 0, len(in.History)+2)
	turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: contextTurn})
	turns = append(turns, in.History...)
	turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: in.UserText})

	return &provider.ChatRequest{
		System:          persona(c.Locale),
		Turns:           turns,
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

// ComposeSuggestions builds a request asking for follow-up questions
// about a topic, without the session history.
func (c *Composer) ComposeSuggestions(in Input, topic string) *provider.ChatRequest {
	content := TruncateRunes(in.PageContent, c.PageContextChars)
	contextTurn := fmt.Sprintf(contextHeader(c.Locale), in.Title, in.PageNumber, content)

	return &provider.ChatRequest{
		System: persona(c.Locale),
		Turns: []provider.Turn{
			{Role: provider.RoleUser, Content: contextTurn},
			{Role: provider.RoleUser, Content: SuggestionsInstruction(c.Locale, topic)},
		},
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

// TruncateRunes keeps the first limit runes of s. Prefix-preserving
// and never splits a multi-byte character.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
