// Package session keeps the in-memory registry of tutoring sessions.
//
// A session lives for one tutoring interaction: created on the first
// message, mutated only by appending messages, and evicted after a
// bounded idle period or when the capacity ceiling forces out the
// oldest idle session. Nothing survives a process restart.
//
// Store is safe for concurrent use by multiple goroutines. Each
// session carries its own lock, so turns against different sessions
// never serialize against each other.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymate/tutor-relay/internal/log"
)

// Store manages resident sessions.
type Store struct {
	idleTTL     time.Duration
	maxSessions int
	logger      log.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates a session store.
func NewStore(idleTTL time.Duration, maxSessions int, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
		logger:      logger.With("component", "sessions"),
		sessions:    make(map[uuid.UUID]*Session),
	}
}

// Create allocates a fresh session for a user and page context.
// When the store is at capacity, the oldest idle session is evicted
// first; if every resident session has a turn in flight, Create fails
// with ErrStoreFull.
func (st *Store) Create(ownerID string, page Page) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.sessions) >= st.maxSessions {
		if !st.evictOldestIdleLocked() {
			return nil, ErrStoreFull
		}
	}

	now := time.Now()
	s := &Session{
		id:         uuid.New(),
		ownerID:    ownerID,
		createdAt:  now,
		turnSem:    make(chan struct{}, 1),
		page:       page,
		lastActive: now,
	}
	st.sessions[s.id] = s

	st.logger.Debug("created session",
		"session_id", s.id,
		"owner_id", ownerID,
		"page", page.Number,
		"resident", len(st.sessions))
	return s, nil
}

// Get retrieves a session by ID.
func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session. Missing sessions are not an error.
func (st *Store) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of resident sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// StartSweeper launches the background eviction loop. It stops when
// ctx is cancelled; the returned channel closes once the loop exits.
func (st *Store) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
	return done
}

// sweep evicts every session idle beyond the TTL, skipping sessions
// with a turn in flight.
func (st *Store) sweep() {
	cutoff := time.Now().Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()

	var evicted int
	for id, s := range st.sessions {
		lastActive, busy := s.idleState()
		if busy || lastActive.After(cutoff) {
			continue
		}
		delete(st.sessions, id)
		evicted++
	}
	if evicted > 0 {
		st.logger.Debug("evicted idle sessions",
			"count", evicted,
			"resident", len(st.sessions))
	}
}

// evictOldestIdleLocked removes the session with the oldest activity
// that has no turn in flight. Caller holds st.mu. Returns false when
// nothing could be evicted.
func (st *Store) evictOldestIdleLocked() bool {
	var oldestID uuid.UUID
	var oldestAt time.Time
	found := false

	for id, s := range st.sessions {
		lastActive, busy := s.idleState()
		if busy {
			continue
		}
		if !found || lastActive.Before(oldestAt) {
			oldestID = id
			oldestAt = lastActive
			found = true
		}
	}
	if !found {
		return false
	}

	delete(st.sessions, oldestID)
	st.logger.Debug("evicted session at capacity",
		"session_id", oldestID,
		"idle_since", oldestAt)
	return true
}
