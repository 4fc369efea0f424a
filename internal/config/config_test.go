package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		ProviderEndpoint: "https://provider.example.com",
		ProviderAPIKey:   "test-api-key-123456",
		ChatModel:        "gemini-2.5-flash",
		EmbedModel:       "gemini-embedding-001",
		SpeechVoice:      "ko-KR-Standard-A",
		Temperature:      0.7,
		MaxOutputTokens:  2048,
		MaxInputChars:    30000,
		MaxDocumentBytes: 20 << 20,
		RequestTimeout:   60 * time.Second,
		Locale:           LocaleKO,
		PageContextChars: 6000,
		SessionIdleTTL:   30 * time.Minute,
		MaxSessions:      1000,
		ListenAddr:       ":8080",
		RateBurst:        60,
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("expected valid config, got %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "empty endpoint",
			mutate:  func(c *Config) { c.ProviderEndpoint = "" },
			wantErr: ErrMissingEndpoint,
		},
		{
			name:    "non-http endpoint",
			mutate:  func(c *Config) { c.ProviderEndpoint = "ftp://provider" },
			wantErr: ErrMissingEndpoint,
		},
		{
			name:    "empty chat model",
			mutate:  func(c *Config) { c.ChatModel = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "negative temperature",
			mutate:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "zero output tokens",
			mutate:  func(c *Config) { c.MaxOutputTokens = 0 },
			wantErr: ErrInvalidMaxTokens,
		},
		{
			name:    "timeout too short",
			mutate:  func(c *Config) { c.RequestTimeout = 100 * time.Millisecond },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "idle TTL too short",
			mutate:  func(c *Config) { c.SessionIdleTTL = 5 * time.Second },
			wantErr: ErrInvalidSessionLimits,
		},
		{
			name:    "zero max sessions",
			mutate:  func(c *Config) { c.MaxSessions = 0 },
			wantErr: ErrInvalidSessionLimits,
		},
		{
			name:    "unsupported locale",
			mutate:  func(c *Config) { c.Locale = "fr" },
			wantErr: ErrInvalidLocale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateServe(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		cfg := validConfig()
		cfg.ProviderAPIKey = ""
		if err := cfg.ValidateServe(); !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("passes with API key", func(t *testing.T) {
		if err := validConfig().ValidateServe(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestSecretMasking(t *testing.T) {
	t.Run("api key masked in JSON", func(t *testing.T) {
		cfg := validConfig()
		data, err := cfg.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if strings.Contains(string(data), cfg.ProviderAPIKey) {
			t.Error("raw API key leaked into JSON output")
		}
		if !strings.Contains(string(data), maskedValue) {
			t.Error("expected masked value in JSON output")
		}
	})

	t.Run("short secret fully masked", func(t *testing.T) {
		if got := maskSecret("abc"); got != maskedValue {
			t.Errorf("expected full mask for short secret, got %q", got)
		}
	})

	t.Run("empty secret stays empty", func(t *testing.T) {
		if got := maskSecret(""); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("String does not leak secrets", func(t *testing.T) {
		cfg := validConfig()
		if strings.Contains(cfg.String(), cfg.ProviderAPIKey) {
			t.Error("String() leaked the API key")
		}
	})
}
