package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one bounded tutoring interaction. All mutation goes
// through methods holding the per-session lock, so concurrent turns
// against the same session serialize without blocking other sessions.
type Session struct {
	id        uuid.UUID
	ownerID   string
	createdAt time.Time

	// turnSem serializes whole turns: two concurrent sends against the
	// same session never interleave their history appends. Capacity 1;
	// acquired by BeginTurn, released by EndTurn (possibly from a
	// different goroutine on the streaming path).
	turnSem chan struct{}

	mu           sync.Mutex
	page         Page
	messages     []Message
	lastActive   time.Time
	inFlight     int
	suggestTopic string
	suggestions  []string
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// OwnerID returns the owning user reference.
func (s *Session) OwnerID() string { return s.ownerID }

// Append adds a message to the history and returns a copy of it.
func (s *Session) Append(role Role, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.lastActive = msg.CreatedAt
	return msg
}

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		ID:        s.id,
		OwnerID:   s.ownerID,
		Page:      s.page,
		Messages:  msgs,
		CreatedAt: s.createdAt,
	}
}

// Page returns the current page-context snapshot.
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// AdvancePage replaces the page-context snapshot. The message
// announcing the change is the orchestrator's job.
func (s *Session) AdvancePage(page Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = page
	s.lastActive = time.Now()
	// The cached suggestions were for the old page.
	s.suggestTopic = ""
	s.suggestions = nil
}

// MessageCount returns the current history length.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// BeginTurn claims the session's turn slot, blocking while another
// turn is in flight, and defers eviction until EndTurn.
func (s *Session) BeginTurn() {
	s.turnSem <- struct{}{}
	s.mu.Lock()
	s.inFlight++
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// EndTurn releases the turn slot claimed by BeginTurn.
func (s *Session) EndTurn() {
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.lastActive = time.Now()
	s.mu.Unlock()
	<-s.turnSem
}

// CachedSuggestions returns cached follow-up questions for a topic.
func (s *Session) CachedSuggestions(topic string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suggestTopic != topic || len(s.suggestions) == 0 {
		return nil, false
	}
	out := make([]string, len(s.suggestions))
	copy(out, s.suggestions)
	return out, true
}

// StoreSuggestions caches follow-up questions for a topic, replacing
// any previous cache entry.
func (s *Session) StoreSuggestions(topic string, suggestions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestTopic = topic
	s.suggestions = make([]string, len(suggestions))
	copy(s.suggestions, suggestions)
}

// idleState reports the last-activity time and whether a turn is in
// flight, for eviction decisions.
func (s *Session) idleState() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.inFlight > 0
}
