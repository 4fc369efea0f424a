package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Page is the textbook context snapshot attached to a session.
// Fixed at creation and only replaced by an explicit page advance.
type Page struct {
	Title   string `json:"title"`
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// Message is one entry in a session's history. Immutable once
// appended; append order is the only ordering guarantee.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a read-only copy of a session's externally visible
// state, safe to hand to callers without holding the session lock.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Page      Page      `json:"page"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}
