package config

import (
	"fmt"
	"strings"
	"time"
)

// Validation bounds.
const (
	// MaxTemperature is the highest sampling temperature accepted by supported providers.
	MaxTemperature = 2.0

	// MaxAllowedOutputTokens caps the output budget to prevent runaway requests.
	MaxAllowedOutputTokens = 65536

	// MinRequestTimeout prevents timeouts too short to complete any provider call.
	MinRequestTimeout = 1 * time.Second

	// MaxRequestTimeout prevents requests from hanging indefinitely.
	MaxRequestTimeout = 10 * time.Minute

	// MinSessionIdleTTL prevents sessions from being evicted mid-conversation.
	MinSessionIdleTTL = 1 * time.Minute

	// MinMaxSessions is the smallest useful capacity ceiling.
	MinMaxSessions = 1
)

// Validate performs comprehensive validation of the configuration.
// Returns the first error encountered, wrapped with a sentinel for errors.Is().
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProviderEndpoint) == "" {
		return ErrMissingEndpoint
	}
	if !strings.HasPrefix(c.ProviderEndpoint, "http://") && !strings.HasPrefix(c.ProviderEndpoint, "https://") {
		return fmt.Errorf("%w: endpoint must be an http(s) URL, got %q", ErrMissingEndpoint, c.ProviderEndpoint)
	}

	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("%w: chat model is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedModel) == "" {
		return fmt.Errorf("%w: embed model is empty", ErrInvalidModelName)
	}

	if c.Temperature < 0 || c.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrInvalidTemperature, c.Temperature, MaxTemperature)
	}

	if c.MaxOutputTokens < 1 || c.MaxOutputTokens > MaxAllowedOutputTokens {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidMaxTokens, c.MaxOutputTokens, MaxAllowedOutputTokens)
	}

	if c.MaxInputChars < 1 {
		return fmt.Errorf("%w: max_input_chars must be positive, got %d", ErrInvalidMaxTokens, c.MaxInputChars)
	}
	if c.MaxDocumentBytes < 1 {
		return fmt.Errorf("%w: max_document_bytes must be positive, got %d", ErrInvalidMaxTokens, c.MaxDocumentBytes)
	}

	if c.RequestTimeout < MinRequestTimeout || c.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidTimeout, c.RequestTimeout, MinRequestTimeout, MaxRequestTimeout)
	}

	if c.SessionIdleTTL < MinSessionIdleTTL {
		return fmt.Errorf("%w: session_idle_ttl %v below minimum %v", ErrInvalidSessionLimits, c.SessionIdleTTL, MinSessionIdleTTL)
	}
	if c.MaxSessions < MinMaxSessions {
		return fmt.Errorf("%w: max_sessions %d below minimum %d", ErrInvalidSessionLimits, c.MaxSessions, MinMaxSessions)
	}

	if c.PageContextChars < 1 {
		return fmt.Errorf("%w: page_context_chars must be positive, got %d", ErrInvalidSessionLimits, c.PageContextChars)
	}

	switch c.Locale {
	case LocaleEN, LocaleKO:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidLocale, c.Locale, LocaleEN, LocaleKO)
	}

	return nil
}

// ValidateServe performs additional validation required for serve mode.
// The API key is only required when actually talking to a live provider.
func (c *Config) ValidateServe() error {
	if strings.TrimSpace(c.ProviderAPIKey) == "" {
		return fmt.Errorf("%w: set TUTOR_PROVIDER_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
