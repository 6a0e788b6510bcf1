// Package journal persists session history in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"symtrace/internal/logger"
)

// SessionStatus represents the terminal (or in-flight) state of a recording session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

const createSessionTableSQL = `
CREATE TABLE IF NOT EXISTS trace_session (
	session_id TEXT PRIMARY KEY,
	target TEXT NOT NULL,
	output_path TEXT NOT NULL,
	session_status TEXT NOT NULL DEFAULT 'running',
	events_captured INTEGER NOT NULL DEFAULT 0,
	symbols_emitted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT
);
`

const createSessionIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_trace_session_started ON trace_session(started_at DESC);
`

// Timestamps are stored as RFC3339 text so rows stay readable with the
// sqlite3 shell and scan the same under any driver.
const timeFormat = time.RFC3339

// SessionRecord is one row of session history.
//
// FinishedAt is nil while the session is still running.
type SessionRecord struct {
	ID             string
	Target         string
	OutputPath     string
	Status         SessionStatus
	EventsCaptured int64
	SymbolsEmitted int
	ErrorMessage   string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Journal records the outcome of each recording session.
//
// Responsibilities:
// - Initialize the trace_session table (idempotent)
// - Insert a row when a session starts
// - Update the row with counts and status when it finishes
// - List recent sessions for the sessions command
//
// The journal is advisory history. Callers treat its errors as warnings;
// a broken journal must never abort a capture or an emit.
type Journal struct {
	db     *sql.DB
	logger *logger.Logger
}

// New creates a journal backed by an existing database handle.
func New(db *sql.DB, log *logger.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Journal{
		db:     db,
		logger: log,
	}, nil
}

// Open opens (creating if needed) the SQLite journal at path and prepares
// its schema. The parent directory is created when missing.
func Open(ctx context.Context, path string, log *logger.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// Single-writer local file. WAL keeps a concurrent sessions listing
	// from blocking an in-flight recording.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure journal database: %w", err)
		}
	}

	j, err := New(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := j.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

// InitSchema creates the session table if it doesn't exist.
//
// This method is idempotent and safe to call on every startup.
func (j *Journal) InitSchema(ctx context.Context) error {
	j.logger.Debug("Initializing session journal schema")

	if _, err := j.db.ExecContext(ctx, createSessionTableSQL); err != nil {
		return fmt.Errorf("failed to create trace_session table: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, createSessionIndexSQL); err != nil {
		return fmt.Errorf("failed to create trace_session index: %w", err)
	}

	return nil
}

// Begin inserts a new session row in 'running' status.
func (j *Journal) Begin(ctx context.Context, rec SessionRecord) error {
	status := rec.Status
	if status == "" {
		status = StatusRunning
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO trace_session (session_id, target, output_path, session_status, started_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Target, rec.OutputPath, status, rec.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}

	j.logger.Debugf("Session %s journaled (target %q)", rec.ID, rec.Target)
	return nil
}

// Finish updates a session row with its final status and counters.
//
// When rec.FinishedAt is nil the current time is used.
func (j *Journal) Finish(ctx context.Context, rec SessionRecord) error {
	finished := time.Now().UTC()
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.UTC()
	}

	_, err := j.db.ExecContext(ctx,
		"UPDATE trace_session SET session_status = ?, events_captured = ?, symbols_emitted = ?, error_message = ?, finished_at = ? WHERE session_id = ?",
		rec.Status, rec.EventsCaptured, rec.SymbolsEmitted, rec.ErrorMessage, finished.Format(timeFormat), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record session result: %w", err)
	}

	j.logger.Debugf("Session %s marked %s", rec.ID, rec.Status)
	return nil
}

// Recent returns up to limit sessions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT session_id, target, output_path, session_status, events_captured, symbols_emitted, error_message, started_at, finished_at FROM trace_session ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			j.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	var recs []SessionRecord
	for rows.Next() {
		var (
			rec        SessionRecord
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Target, &rec.OutputPath, &rec.Status,
			&rec.EventsCaptured, &rec.SymbolsEmitted, &rec.ErrorMessage,
			&startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		if t, err := time.Parse(timeFormat, startedAt); err == nil {
			rec.StartedAt = t
		}
		if finishedAt.Valid {
			if t, err := time.Parse(timeFormat, finishedAt.String); err == nil {
				rec.FinishedAt = &t
			}
		}

		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return recs, nil
}

// Counts returns session totals grouped by status.
func (j *Journal) Counts(ctx context.Context) (running, completed, failed int, err error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT session_status, COUNT(*) FROM trace_session GROUP BY session_status",
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			j.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	for rows.Next() {
		var status SessionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to scan session counts: %w", err)
		}

		switch status {
		case StatusRunning:
			running = count
		case StatusCompleted:
			completed = count
		case StatusFailed:
			failed = count
		}
	}

	return running, completed, failed, rows.Err()
}

// SetLogger sets a custom logger for the journal.
func (j *Journal) SetLogger(log *logger.Logger) {
	j.logger = log
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
