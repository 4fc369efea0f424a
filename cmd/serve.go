package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studymate/tutor-relay/internal/api"
	"github.com/studymate/tutor-relay/internal/audit"
	"github.com/studymate/tutor-relay/internal/config"
	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/prompt"
	"github.com/studymate/tutor-relay/internal/provider"
	"github.com/studymate/tutor-relay/internal/relay"
	"github.com/studymate/tutor-relay/internal/session"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
	sweepInterval     = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// logLevel maps TUTOR_LOG_LEVEL onto a slog level, defaulting to info.
func logLevel() slog.Level {
	switch os.Getenv("TUTOR_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runServe initializes every layer and runs the HTTP server until a
// shutdown signal arrives.
func runServe() error {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel(), JSON: true})
	logger.Info("starting tutor relay", "version", Version, "locale", cfg.Locale)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var auditor audit.Recorder = audit.NewNop()
	if cfg.AuditEnabled {
		rec, err := audit.NewSQLite(cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		auditor = rec
		logger.Info("audit recording enabled", "path", cfg.AuditPath)
	}
	defer func() {
		if err := auditor.Close(); err != nil {
			logger.Warn("closing audit store", "error", err)
		}
	}()

	client := provider.NewClient(provider.Config{
		Endpoint:         cfg.ProviderEndpoint,
		APIKey:           cfg.ProviderAPIKey,
		ChatModel:        cfg.ChatModel,
		EmbedModel:       cfg.EmbedModel,
		Voice:            cfg.SpeechVoice,
		Temperature:      cfg.Temperature,
		MaxOutputTokens:  cfg.MaxOutputTokens,
		MaxInputChars:    cfg.MaxInputChars,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		RequestTimeout:   cfg.RequestTimeout,
	}, logger)

	sessions := session.NewStore(cfg.SessionIdleTTL, cfg.MaxSessions, logger)
	sweeperDone := sessions.StartSweeper(ctx, sweepInterval)

	composer := &prompt.Composer{
		Locale:           cfg.Locale,
		PageContextChars: cfg.PageContextChars,
		Temperature:      cfg.Temperature,
		MaxOutputTokens:  cfg.MaxOutputTokens,
	}

	orch := relay.New(client, sessions, composer, auditor, relay.Config{
		Locale:  cfg.Locale,
		Retry:   relay.DefaultRetryConfig(),
		Breaker: relay.DefaultBreakerConfig(),
	}, logger)

	apiServer := api.NewServer(api.Config{
		Relay:            orch,
		Media:            client,
		CORSOrigins:      cfg.CORSOrigins,
		TrustProxy:       cfg.TrustProxy,
		RateBurst:        cfg.RateBurst,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		<-sweeperDone
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
