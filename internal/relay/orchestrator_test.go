package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/studymate/tutor-relay/internal/audit"
	"github.com/studymate/tutor-relay/internal/log"
	"github.com/studymate/tutor-relay/internal/prompt"
	"github.com/studymate/tutor-relay/internal/provider"
	"github.com/studymate/tutor-relay/internal/session"
	"github.com/studymate/tutor-relay/internal/stream"
	"github.com/studymate/tutor-relay/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOrchestrator(t *testing.T, mock *testutil.MockProvider) (*Orchestrator, *session.Store) {
	t.Helper()
	sessions := session.NewStore(time.Hour, 100, log.NewNop())
	composer := &prompt.Composer{
		Locale:           "ko",
		PageContextChars: 1000,
		Temperature:      0.7,
		MaxOutputTokens:  512,
	}
	// Buffer of 1 keeps streaming tests deterministic: a producer with
	// more chunks than buffer+consumed blocks until the consumer acts.
	cfg := Config{
		Locale:       "ko",
		StreamBuffer: 1,
		Retry:        RetryConfig{MaxAttempts: 3, MaxDelay: 10 * time.Millisecond},
		Breaker:      DefaultBreakerConfig(),
	}
	o := New(mock, sessions, composer, audit.NewNop(), cfg, log.NewNop())
	return o, sessions
}

func startTestSession(t *testing.T, o *Orchestrator) session.Snapshot {
	t.Helper()
	snap, err := o.StartSession("u1", session.Page{
		Title:   "국어 교과서",
		Number:  3,
		Content: "훈민정음은 세종대왕이 창제한 문자이다.",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return snap
}

func transientErr() error {
	return &provider.UnavailableError{Kind: provider.KindTransient, Err: errors.New("connection refused")}
}

func TestStartSession(t *testing.T) {
	o, _ := testOrchestrator(t, testutil.NewMockProvider("ok"))
	snap := startTestSession(t, o)

	if len(snap.Messages) != 1 {
		t.Fatalf("got %d seeded messages, want 1", len(snap.Messages))
	}
	welcome := snap.Messages[0]
	if welcome.Role != session.RoleAssistant {
		t.Errorf("welcome role = %q, want assistant", welcome.Role)
	}
	if !strings.Contains(welcome.Content, "3") {
		t.Errorf("welcome missing page number: %q", welcome.Content)
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("successful turn appends two messages", func(t *testing.T) {
		mock := testutil.NewMockProvider("기본 답변")
		mock.AddResponse("훈민정음", "세종대왕이 만든 문자입니다.")
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		before := len(snap.Messages)
		result, err := o.SendMessage(context.Background(), snap.ID, "훈민정음이 뭐야?")
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}

		if result.Outcome != OutcomeLive {
			t.Errorf("outcome = %q, want live", result.Outcome)
		}
		if result.Assistant.Content != "세종대왕이 만든 문자입니다." {
			t.Errorf("assistant = %q", result.Assistant.Content)
		}

		after, _ := o.GetSession(snap.ID)
		if len(after.Messages) != before+2 {
			t.Errorf("message count = %d, want %d", len(after.Messages), before+2)
		}
	})

	t.Run("empty input rejected without mutation", func(t *testing.T) {
		o, _ := testOrchestrator(t, testutil.NewMockProvider("ok"))
		snap := startTestSession(t, o)
		before := len(snap.Messages)

		_, err := o.SendMessage(context.Background(), snap.ID, "   ")
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		if !errors.Is(err, provider.ErrInvalidInput) {
			t.Error("ErrEmptyMessage should wrap the invalid-input sentinel")
		}

		after, _ := o.GetSession(snap.ID)
		if len(after.Messages) != before {
			t.Errorf("message count changed on rejected input: %d -> %d", before, len(after.Messages))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		o, _ := testOrchestrator(t, testutil.NewMockProvider("ok"))
		snap := startTestSession(t, o)
		o.EndSession(snap.ID)

		if _, err := o.SendMessage(context.Background(), snap.ID, "hi"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("transient failure degrades to fallback", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.FailAll(transientErr())
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		result, err := o.SendMessage(context.Background(), snap.ID, "설명해줘")
		if err != nil {
			t.Fatalf("degraded turn must not error: %v", err)
		}
		if result.Outcome != OutcomeDegraded {
			t.Errorf("outcome = %q, want degraded", result.Outcome)
		}
		if strings.TrimSpace(result.Assistant.Content) == "" {
			t.Error("fallback answer must be non-empty")
		}
		// Transient failures retry on the next turn, not within this one.
		if mock.CallCount() != 1 {
			t.Errorf("provider called %d times, want 1", mock.CallCount())
		}
	})

	t.Run("rate limit retries then degrades", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.FailAll(&provider.UnavailableError{
			Kind:       provider.KindRateLimited,
			StatusCode: 429,
			RetryAfter: time.Millisecond,
		})
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		result, err := o.SendMessage(context.Background(), snap.ID, "설명해줘")
		if err != nil {
			t.Fatalf("degraded turn must not error: %v", err)
		}
		if result.Outcome != OutcomeDegraded {
			t.Errorf("outcome = %q, want degraded", result.Outcome)
		}
		if mock.CallCount() != 3 {
			t.Errorf("provider called %d times, want 3 (configured attempts)", mock.CallCount())
		}
	})

	t.Run("auth failure never retries", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.FailAll(&provider.UnavailableError{Kind: provider.KindAuth, StatusCode: 401})
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		result, err := o.SendMessage(context.Background(), snap.ID, "설명해줘")
		if err != nil {
			t.Fatalf("degraded turn must not error: %v", err)
		}
		if result.Outcome != OutcomeDegraded {
			t.Errorf("outcome = %q, want degraded", result.Outcome)
		}
		if mock.CallCount() != 1 {
			t.Errorf("provider called %d times, want 1", mock.CallCount())
		}
	})

	t.Run("identical failing input yields stable fallback", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.FailAll(transientErr())
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		first, _ := o.SendMessage(context.Background(), snap.ID, "같은 질문")
		second, _ := o.SendMessage(context.Background(), snap.ID, "같은 질문")
		if first.Assistant.Content != second.Assistant.Content {
			t.Error("fallback choice should be stable for identical input")
		}
	})
}

func TestSendMessageStream(t *testing.T) {
	t.Run("chunks in order, consolidated history entry", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.AddChunkedResponse("광합성", "광합성은 ", "빛을 ", "양분으로 바꿉니다.")
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)
		before := len(snap.Messages)

		turn, err := o.SendMessageStream(context.Background(), snap.ID, "광합성이 뭐야?")
		if err != nil {
			t.Fatalf("SendMessageStream: %v", err)
		}

		var got []string
		for chunk := range turn.Relay.Chunks() {
			got = append(got, chunk)
		}
		result := <-turn.Result

		want := "광합성은 빛을 양분으로 바꿉니다."
		if strings.Join(got, "") != want {
			t.Errorf("chunks = %q, want concatenation %q", got, want)
		}
		if result.Outcome != OutcomeLive {
			t.Errorf("outcome = %q, want live", result.Outcome)
		}
		if result.Assistant.Content != want {
			t.Errorf("consolidated = %q, want %q", result.Assistant.Content, want)
		}

		after, _ := o.GetSession(snap.ID)
		if len(after.Messages) != before+2 {
			t.Errorf("message count = %d, want %d", len(after.Messages), before+2)
		}
	})

	t.Run("abort leaves only the user message", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.AddChunkedResponse("질문", "하나 ", "둘 ", "셋")
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)
		before := len(snap.Messages)

		ctx, cancel := context.WithCancel(context.Background())
		turn, err := o.SendMessageStream(ctx, snap.ID, "질문입니다")
		if err != nil {
			t.Fatalf("SendMessageStream: %v", err)
		}

		<-turn.Relay.Chunks() // first chunk arrives
		cancel()
		for range turn.Relay.Chunks() {
		}
		result := <-turn.Result

		if !result.Aborted {
			t.Error("expected aborted result")
		}
		if turn.Relay.State() != stream.StateAborted {
			t.Errorf("relay state = %v, want aborted", turn.Relay.State())
		}

		after, _ := o.GetSession(snap.ID)
		if len(after.Messages) != before+1 {
			t.Errorf("message count = %d, want %d (user message only)", len(after.Messages), before+1)
		}
	})

	t.Run("mid-stream failure appends separate fallback", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.AddStreamFailure("질문", transientErr(), "부분 ", "출력")
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)
		before := len(snap.Messages)

		turn, err := o.SendMessageStream(context.Background(), snap.ID, "질문입니다")
		if err != nil {
			t.Fatalf("SendMessageStream: %v", err)
		}

		var delivered []string
		for chunk := range turn.Relay.Chunks() {
			delivered = append(delivered, chunk)
		}
		result := <-turn.Result

		// Chunks already delivered are not retracted.
		if strings.Join(delivered, "") != "부분 출력" {
			t.Errorf("delivered = %q", delivered)
		}
		if result.Outcome != OutcomeDegraded {
			t.Errorf("outcome = %q, want degraded", result.Outcome)
		}
		if strings.TrimSpace(result.Assistant.Content) == "" {
			t.Error("fallback answer must be non-empty")
		}
		if strings.Contains(result.Assistant.Content, "부분") {
			t.Error("fallback must be a separate message, not include partial chunks")
		}

		after, _ := o.GetSession(snap.ID)
		if len(after.Messages) != before+2 {
			t.Errorf("message count = %d, want %d", len(after.Messages), before+2)
		}
	})

	t.Run("empty input rejected before streaming", func(t *testing.T) {
		o, _ := testOrchestrator(t, testutil.NewMockProvider("ok"))
		snap := startTestSession(t, o)

		if _, err := o.SendMessageStream(context.Background(), snap.ID, ""); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("expected ErrEmptyMessage, got %v", err)
		}
	})
}

func TestConcurrentTurns(t *testing.T) {
	mock := testutil.NewMockProvider("답변")
	o, _ := testOrchestrator(t, mock)
	snap := startTestSession(t, o)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.SendMessage(context.Background(), snap.ID, "동시 질문"); err != nil {
				t.Errorf("SendMessage: %v", err)
			}
		}()
	}
	wg.Wait()

	after, _ := o.GetSession(snap.ID)
	// welcome + 2 user + 2 assistant
	if len(after.Messages) != 5 {
		t.Fatalf("message count = %d, want 5", len(after.Messages))
	}
	// Every user message is followed by an assistant message.
	for i, m := range after.Messages {
		if m.Role == session.RoleUser {
			if i+1 >= len(after.Messages) || after.Messages[i+1].Role != session.RoleAssistant {
				t.Fatalf("user message at %d not followed by assistant reply", i)
			}
		}
	}
}

func TestAdvancePage(t *testing.T) {
	o, _ := testOrchestrator(t, testutil.NewMockProvider("ok"))
	snap := startTestSession(t, o)

	msg, err := o.AdvancePage(snap.ID, session.Page{Title: "국어 교과서", Number: 4, Content: "다음 단원"})
	if err != nil {
		t.Fatalf("AdvancePage: %v", err)
	}
	if msg.Role != session.RoleAssistant {
		t.Errorf("transition role = %q, want assistant", msg.Role)
	}
	if !strings.Contains(msg.Content, "4") {
		t.Errorf("transition missing page number: %q", msg.Content)
	}

	after, _ := o.GetSession(snap.ID)
	if after.Page.Number != 4 {
		t.Errorf("page = %d, want 4", after.Page.Number)
	}
}

func TestSuggestions(t *testing.T) {
	t.Run("parses and caches", func(t *testing.T) {
		mock := testutil.NewMockProvider("")
		mock.AddResponse("훈민정음", "1. 훈민정음은 언제 만들어졌나요?\n2. 왜 만들어졌나요?\n- 누가 사용했나요?\n")
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		got, err := o.Suggestions(context.Background(), snap.ID, "훈민정음")
		if err != nil {
			t.Fatalf("Suggestions: %v", err)
		}
		want := []string{
			"훈민정음은 언제 만들어졌나요?",
			"왜 만들어졌나요?",
			"누가 사용했나요?",
		}
		if len(got) != len(want) {
			t.Fatalf("got %d suggestions %q, want %d", len(got), got, len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("suggestion %d = %q, want %q", i, got[i], want[i])
			}
		}

		calls := mock.CallCount()
		again, err := o.Suggestions(context.Background(), snap.ID, "훈민정음")
		if err != nil {
			t.Fatalf("Suggestions (cached): %v", err)
		}
		if mock.CallCount() != calls {
			t.Error("cached topic should not call the provider again")
		}
		if len(again) != len(want) {
			t.Errorf("cached result = %q", again)
		}
	})

	t.Run("failure returns empty, not error", func(t *testing.T) {
		mock := testutil.NewMockProvider("ok")
		mock.FailAll(transientErr())
		o, _ := testOrchestrator(t, mock)
		snap := startTestSession(t, o)

		got, err := o.Suggestions(context.Background(), snap.ID, "아무 주제")
		if err != nil {
			t.Fatalf("Suggestions must not fail the caller: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty suggestions, got %q", got)
		}
	})
}

func TestBreakerShortCircuits(t *testing.T) {
	mock := testutil.NewMockProvider("ok")
	mock.FailAll(transientErr())
	o, _ := testOrchestrator(t, mock)
	snap := startTestSession(t, o)

	// Drive the breaker open with consecutive failing turns.
	threshold := DefaultBreakerConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		if _, err := o.SendMessage(context.Background(), snap.ID, "실패 유도"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	if o.breaker.currentState() != breakerOpen {
		t.Fatalf("breaker state = %v, want open", o.breaker.currentState())
	}

	calls := mock.CallCount()
	result, err := o.SendMessage(context.Background(), snap.ID, "추가 질문")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %q, want degraded", result.Outcome)
	}
	if mock.CallCount() != calls {
		t.Error("open breaker must not reach the provider")
	}
}
