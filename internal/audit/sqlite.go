package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists turn records in a local SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed recorder at dbPath.
func NewSQLite(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	// WAL mode keeps concurrent turn writes from blocking each other.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RecordTurn inserts one turn record.
func (r *SQLiteRecorder) RecordTurn(ctx context.Context, t Turn) error {
	query := `INSERT INTO turns (session_id, user_id, outcome, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.SessionID, t.UserID, t.Outcome, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}
	return nil
}

// DegradedCount returns how many degraded turns were recorded since
// the given time. Used for monitoring queries.
func (r *SQLiteRecorder) DegradedCount(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM turns WHERE outcome = 'degraded' AND created_at >= ?`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, since.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count degraded turns: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close audit database: %w", err)
	}
	return nil
}
