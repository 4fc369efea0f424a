// Package relay orchestrates tutoring turns: it validates input,
// composes the provider request, relays the answer (streamed or not),
// degrades to a locally generated fallback when the provider fails,
// and keeps the session history consistent throughout.
//
// The orchestrator is the only place that decides whether a provider
// failure becomes a degraded answer. Students never see raw provider
// errors: every valid turn ends with an assistant reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studymate/tutor-relay/internal/audit"
	"github.com/studymate/tutor-relay/internal/fallback"
	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/prompt"
	"github.com/studymate/tutor-relay/internal/provider"
	"github.com/studymate/tutor-relay/internal/session"
	"github.com/studymate/tutor-relay/internal/stream"
)

// ErrEmptyMessage rejects a blank user turn before any state changes.
var ErrEmptyMessage = fmt.Errorf("%w: message is empty after trimming", provider.ErrInvalidInput)

// maxSuggestions caps the follow-up questions returned per request.
const maxSuggestions = 5

// ProviderClient is the slice of the provider surface the
// orchestrator needs. Defined here so tests can substitute a mock.
type ProviderClient interface {
	CompleteChat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
	CompleteChatStream(ctx context.Context, req *provider.ChatRequest, fn provider.ChunkHandler) (*provider.ChatResponse, error)
}

// Outcome tags where a turn's answer came from. Internal only: the
// student-facing reply looks the same either way.
type Outcome string

const (
	OutcomeLive     Outcome = "live"
	OutcomeDegraded Outcome = "degraded"
)

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	User      session.Message
	Assistant session.Message
	Outcome   Outcome
	// Aborted is set when the caller cancelled mid-stream; no
	// assistant message was appended.
	Aborted bool
	// Score is the provider's confidence for live answers, 0 otherwise.
	Score float64
}

// StreamTurn is an in-flight streaming turn. Consume Relay.Chunks
// until it closes, then read the final TurnResult from Result.
type StreamTurn struct {
	User   session.Message
	Relay  *stream.Relay
	Result <-chan TurnResult
}

// Config carries the orchestrator's tunables.
type Config struct {
	Locale       string
	StreamBuffer int
	Retry        RetryConfig
	Breaker      BreakerConfig
}

// Orchestrator coordinates sessions, prompt composition, provider
// calls and fallback generation. Safe for concurrent use.
type Orchestrator struct {
	providerClient ProviderClient
	sessions       *session.Store
	composer       *prompt.Composer
	generator      *fallback.Generator
	breaker        *breaker
	retry          RetryConfig
	streamBuffer   int
	locale         string
	auditor        audit.Recorder
	logger         log.Logger
}

// New creates an orchestrator.
func New(client ProviderClient, sessions *session.Store, composer *prompt.Composer, auditor audit.Recorder, cfg Config, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	if auditor == nil {
		auditor = audit.NewNop()
	}
	buffer := cfg.StreamBuffer
	if buffer <= 0 {
		buffer = 16
	}
	locale := cfg.Locale
	if locale == "" {
		locale = "ko"
	}
	return &Orchestrator{
		providerClient: client,
		sessions:       sessions,
		composer:       composer,
		generator:      fallback.New(locale),
		breaker:        newBreaker(cfg.Breaker),
		retry:          cfg.Retry,
		streamBuffer:   buffer,
		locale:         locale,
		auditor:        auditor,
		logger:         logger.With("component", "relay"),
	}
}

// StartSession allocates a fresh session seeded with a templated
// welcome message referencing the page. Never calls the provider.
func (o *Orchestrator) StartSession(userID string, page session.Page) (session.Snapshot, error) {
	s, err := o.sessions.Create(userID, page)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("creating session: %w", err)
	}
	s.Append(session.RoleAssistant, prompt.Welcome(o.locale, page.Title, page.Number))

	o.logger.Info("session started",
		"session_id", s.ID(),
		"user_id", userID,
		"page", page.Number)
	return s.Snapshot(), nil
}

// GetSession returns a session snapshot.
func (o *Orchestrator) GetSession(id uuid.UUID) (session.Snapshot, error) {
	s, err := o.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// EndSession removes a session.
func (o *Orchestrator) EndSession(id uuid.UUID) {
	o.sessions.Delete(id)
}

// SendMessage runs one synchronous turn. The user message is appended
// before the provider call so a failure never loses the student's
// input; a provider failure appends a fallback answer instead of
// surfacing an error.
func (o *Orchestrator) SendMessage(ctx context.Context, id uuid.UUID, userText string) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	s, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	s.BeginTurn()
	defer s.EndTurn()

	snap := s.Snapshot()
	userMsg := s.Append(session.RoleUser, userText)
	req := o.composer.Compose(composeInput(snap, userText))

	resp, err := o.completeChat(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		o.observeFailure(id, err)
		assistant := s.Append(session.RoleAssistant, o.generator.Reply(userText))
		o.recordTurn(s, OutcomeDegraded)
		return &TurnResult{User: userMsg, Assistant: assistant, Outcome: OutcomeDegraded}, nil
	}

	assistant := s.Append(session.RoleAssistant, resp.Text)
	o.recordTurn(s, OutcomeLive)
	return &TurnResult{User: userMsg, Assistant: assistant, Outcome: OutcomeLive, Score: resp.Score}, nil
}

// SendMessageStream runs one streaming turn. Chunks arrive on the
// returned relay in provider order; the final TurnResult arrives on
// Result after the relay reaches a terminal state.
//
// On completion the consolidated text is appended as one assistant
// message. On caller cancellation nothing is appended. On transport
// failure a fallback answer is appended as a separate message; chunks
// already delivered are not retracted.
func (o *Orchestrator) SendMessageStream(ctx context.Context, id uuid.UUID, userText string) (*StreamTurn, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	s, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	s.BeginTurn()

	snap := s.Snapshot()
	userMsg := s.Append(session.RoleUser, userText)
	req := o.composer.Compose(composeInput(snap, userText))

	r := stream.New(o.streamBuffer)
	result := make(chan TurnResult, 1)

	go func() {
		defer s.EndTurn()
		defer close(result)

		streamErr := o.breaker.allow()
		if streamErr == nil {
			_, streamErr = o.streamWithRetry(ctx, r, req)
			if streamErr == nil {
				o.breaker.success()
			} else if !errors.Is(streamErr, context.Canceled) {
				o.breaker.failure()
			}
		} else {
			streamErr = &provider.UnavailableError{Kind: provider.KindTransient, Err: streamErr}
		}

		r.Finish(streamErr)

		switch r.State() {
		case stream.StateCompleted:
			assistant := s.Append(session.RoleAssistant, r.Consolidated())
			o.recordTurn(s, OutcomeLive)
			result <- TurnResult{User: userMsg, Assistant: assistant, Outcome: OutcomeLive}
		case stream.StateAborted:
			// An aborted turn leaves only the user message behind.
			result <- TurnResult{User: userMsg, Aborted: true}
		default:
			o.observeFailure(id, streamErr)
			assistant := s.Append(session.RoleAssistant, o.generator.Reply(userText))
			o.recordTurn(s, OutcomeDegraded)
			result <- TurnResult{User: userMsg, Assistant: assistant, Outcome: OutcomeDegraded}
		}
	}()

	return &StreamTurn{User: userMsg, Relay: r, Result: result}, nil
}

// streamWithRetry calls the streaming provider endpoint, retrying
// rate limits only while no chunk has been forwarded yet. Once the
// relay is streaming, a retry would duplicate delivered chunks.
func (o *Orchestrator) streamWithRetry(ctx context.Context, r *stream.Relay, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return o.callWithRetry(ctx, func() (*provider.ChatResponse, error) {
		if r.State() != stream.StatePending {
			return o.providerClient.CompleteChatStream(ctx, req, r.Push)
		}
		resp, err := o.providerClient.CompleteChatStream(ctx, req, r.Push)
		if err != nil && r.State() != stream.StatePending {
			// Partial output already reached the caller; surface the
			// failure instead of retrying.
			if ue, ok := provider.IsUnavailable(err); ok && ue.Kind == provider.KindRateLimited {
				return nil, &provider.UnavailableError{Kind: provider.KindTransient, Err: err}
			}
		}
		return resp, err
	})
}

// AdvancePage replaces the session's page context and appends a
// templated transition message. Never calls the provider.
func (o *Orchestrator) AdvancePage(id uuid.UUID, page session.Page) (session.Message, error) {
	s, err := o.sessions.Get(id)
	if err != nil {
		return session.Message{}, err
	}

	s.AdvancePage(page)
	msg := s.Append(session.RoleAssistant, prompt.Transition(o.locale, page.Number))

	o.logger.Debug("page advanced",
		"session_id", id,
		"page", page.Number)
	return msg, nil
}

// Suggestions returns short follow-up questions for a topic.
// Suggestions are optional enrichment: any provider failure yields an
// empty list, never an error. Results are cached per session until
// the topic or page changes.
func (o *Orchestrator) Suggestions(ctx context.Context, id uuid.UUID, topic string) ([]string, error) {
	s, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = s.Page().Title
	}
	if cached, ok := s.CachedSuggestions(topic); ok {
		return cached, nil
	}

	snap := s.Snapshot()
	req := o.composer.ComposeSuggestions(composeInput(snap, ""), topic)

	resp, err := o.completeChat(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		o.logger.Debug("suggestions unavailable",
			"session_id", id,
			"error", err)
		return []string{}, nil
	}

	suggestions := parseSuggestions(resp.Text)
	if len(suggestions) > 0 {
		s.StoreSuggestions(topic, suggestions)
	}
	return suggestions, nil
}

// completeChat guards a synchronous provider call with the circuit
// breaker and the rate-limit retry policy.
func (o *Orchestrator) completeChat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if err := o.breaker.allow(); err != nil {
		return nil, &provider.UnavailableError{Kind: provider.KindTransient, Err: err}
	}

	resp, err := o.callWithRetry(ctx, func() (*provider.ChatResponse, error) {
		return o.providerClient.CompleteChat(ctx, req)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.breaker.failure()
		}
		return nil, err
	}
	o.breaker.success()
	return resp, nil
}

// observeFailure logs a provider failure at a severity matching its
// kind. Auth failures page operators; everything else is routine
// degradation.
func (o *Orchestrator) observeFailure(id uuid.UUID, err error) {
	ue, ok := provider.IsUnavailable(err)
	if !ok {
		o.logger.Warn("provider call failed",
			"session_id", id,
			"error", err)
		return
	}
	switch ue.Kind {
	case provider.KindAuth:
		o.logger.Error("provider auth failure, check credentials",
			"session_id", id,
			"status", ue.StatusCode,
			"error", err)
	case provider.KindRateLimited:
		o.logger.Warn("provider rate limit exhausted retries",
			"session_id", id,
			"retry_after", ue.RetryAfter,
			"error", err)
	default:
		o.logger.Warn("provider unavailable, serving fallback",
			"session_id", id,
			"breaker", o.breaker.currentState().String(),
			"error", err)
	}
}

// recordTurn emits a fire-and-forget audit record. Persistence
// failures never fail the turn.
func (o *Orchestrator) recordTurn(s *session.Session, outcome Outcome) {
	turn := audit.Turn{
		SessionID: s.ID().String(),
		UserID:    s.OwnerID(),
		Outcome:   string(outcome),
		CreatedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.auditor.RecordTurn(ctx, turn); err != nil {
			o.logger.Debug("audit record failed",
				"session_id", turn.SessionID,
				"error", err)
		}
	}()
}

// composeInput maps a session snapshot into composer input.
func composeInput(snap session.Snapshot, userText string) prompt.Input {
	history := make([]provider.Turn, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		role := provider.RoleUser
		if m.Role == session.RoleAssistant {
			role = provider.RoleAssistant
		}
		history = append(history, provider.Turn{Role: role, Content: m.Content})
	}
	return prompt.Input{
		Title:       snap.Page.Title,
		PageNumber:  snap.Page.Number,
		PageContent: snap.Page.Content,
		History:     history,
		UserText:    userText,
	}
}

// parseSuggestions splits provider output into clean question lines,
// stripping list markers and numbering.
func parseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
