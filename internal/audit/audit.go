// Package audit persists fire-and-forget turn records for degradation
// tracking. A failed write must never fail the tutoring turn itself.
package audit

import (
	"context"
	"time"
)

// Turn is one completed tutoring turn.
type Turn struct {
	SessionID string
	UserID    string
	// Outcome is "live" or "degraded".
	Outcome   string
	CreatedAt time.Time
}

// Recorder accepts turn records.
type Recorder interface {
	RecordTurn(ctx context.Context, t Turn) error
	Close() error
}

// Nop discards every record. Used when auditing is disabled.
type Nop struct{}

// NewNop creates a recorder that discards everything.
func NewNop() Nop { return Nop{} }

func (Nop) RecordTurn(context.Context, Turn) error { return nil }
func (Nop) Close() error                           { return nil }
