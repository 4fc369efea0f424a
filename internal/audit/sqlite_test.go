package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteRecorder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	r, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	ctx := context.Background()
	now := time.Now()

	turns := []Turn{
		{SessionID: "s1", UserID: "u1", Outcome: "live", CreatedAt: now},
		{SessionID: "s1", UserID: "u1", Outcome: "degraded", CreatedAt: now},
		{SessionID: "s2", UserID: "u2", Outcome: "degraded", CreatedAt: now},
	}
	for _, turn := range turns {
		if err := r.RecordTurn(ctx, turn); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}

	count, err := r.DegradedCount(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("DegradedCount: %v", err)
	}
	if count != 2 {
		t.Errorf("degraded count = %d, want 2", count)
	}

	t.Run("old records excluded", func(t *testing.T) {
		count, err := r.DegradedCount(ctx, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("DegradedCount: %v", err)
		}
		if count != 0 {
			t.Errorf("degraded count = %d, want 0", count)
		}
	})
}

func TestNop(t *testing.T) {
	r := NewNop()
	if err := r.RecordTurn(context.Background(), Turn{}); err != nil {
		t.Errorf("RecordTurn: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
