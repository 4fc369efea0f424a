// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tutor-relay/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Provider: endpoint, models, sampling parameters, timeouts
//   - Session: in-memory store idle TTL and capacity ceiling
//   - Server: HTTP address, CORS, rate limiting
//   - Audit: optional turn-record persistence (SQLite)
//
// Security: Sensitive data (API keys) are never logged; config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the provider API key is missing.
	ErrMissingAPIKey = errors.New("missing provider API key")

	// ErrMissingEndpoint indicates the provider endpoint is not set.
	ErrMissingEndpoint = errors.New("missing provider endpoint")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max output tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max output tokens")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidSessionLimits indicates the session store limits are out of range.
	ErrInvalidSessionLimits = errors.New("invalid session limits")

	// ErrInvalidLocale indicates the locale is not supported.
	ErrInvalidLocale = errors.New("invalid locale")
)

// Supported locales for persona instructions and templates.
const (
	LocaleEN = "en"
	LocaleKO = "ko"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update MarshalJSON.
type Config struct {
	// Provider configuration
	ProviderEndpoint string  `mapstructure:"provider_endpoint" json:"provider_endpoint"`
	ProviderAPIKey   string  `mapstructure:"provider_api_key" json:"provider_api_key"` // SENSITIVE: masked in MarshalJSON
	ChatModel        string  `mapstructure:"chat_model" json:"chat_model"`
	EmbedModel       string  `mapstructure:"embed_model" json:"embed_model"`
	SpeechVoice      string  `mapstructure:"speech_voice" json:"speech_voice"`
	Temperature      float32 `mapstructure:"temperature" json:"temperature"`
	MaxOutputTokens  int     `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	MaxInputChars    int     `mapstructure:"max_input_chars" json:"max_input_chars"`
	MaxDocumentBytes int64   `mapstructure:"max_document_bytes" json:"max_document_bytes"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Prompt composition
	Locale          string `mapstructure:"locale" json:"locale"`
	PageContextChars int   `mapstructure:"page_context_chars" json:"page_context_chars"`

	// Session store configuration
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl" json:"session_idle_ttl"`
	MaxSessions    int           `mapstructure:"max_sessions" json:"max_sessions"`

	// Server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Audit configuration
	AuditEnabled bool   `mapstructure:"audit_enabled" json:"audit_enabled"`
	AuditPath    string `mapstructure:"audit_path" json:"audit_path"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tutor-relay")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("provider_endpoint", "https://generativelanguage.googleapis.com")
	v.SetDefault("chat_model", "gemini-2.5-flash")
	v.SetDefault("embed_model", "gemini-embedding-001")
	v.SetDefault("speech_voice", "ko-KR-Standard-A")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_output_tokens", 2048)
	v.SetDefault("max_input_chars", 30000)
	v.SetDefault("max_document_bytes", 20<<20)
	v.SetDefault("request_timeout", 60*time.Second)

	// Prompt defaults
	v.SetDefault("locale", LocaleKO)
	v.SetDefault("page_context_chars", 6000)

	// Session store defaults
	v.SetDefault("session_idle_ttl", 30*time.Minute)
	v.SetDefault("max_sessions", 1000)

	// Server defaults
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	// Audit defaults
	v.SetDefault("audit_enabled", false)
	v.SetDefault("audit_path", "tutor-relay-audit.db")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider_api_key", "TUTOR_PROVIDER_API_KEY")
	mustBind("provider_endpoint", "TUTOR_PROVIDER_ENDPOINT")
	mustBind("chat_model", "TUTOR_CHAT_MODEL")
	mustBind("embed_model", "TUTOR_EMBED_MODEL")
	mustBind("locale", "TUTOR_LOCALE")
	mustBind("listen_addr", "TUTOR_LISTEN_ADDR")
	mustBind("cors_origins", "TUTOR_CORS_ORIGINS")
	mustBind("trust_proxy", "TUTOR_TRUST_PROXY")
	mustBind("rate_burst", "TUTOR_RATE_BURST")
	mustBind("audit_enabled", "TUTOR_AUDIT_ENABLED")
	mustBind("audit_path", "TUTOR_AUDIT_PATH")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - ProviderAPIKey
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.ProviderAPIKey = maskSecret(a.ProviderAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
