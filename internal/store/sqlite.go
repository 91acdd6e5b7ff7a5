package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/hint-tutor/internal/domain"
	"github.com/ashureev/hint-tutor/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteArchive implements Archive using SQLite.
type SQLiteArchive struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// ArchivedSession is a resolved session as stored in the archive.
type ArchivedSession struct {
	SessionID  string
	Question   string
	Transcript []domain.Message
	HintCount  int
	Solution   string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// NewSQLiteArchive opens (and if needed creates) the archive database.
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	a := &SQLiteArchive{db: db}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	return a, nil
}

func (a *SQLiteArchive) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS resolved_sessions (
		session_id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		transcript_json TEXT NOT NULL,
		hint_count INTEGER NOT NULL,
		solution TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resolved_at ON resolved_sessions(resolved_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (a *SQLiteArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Record stores a resolved session, retrying while the database is busy.
func (a *SQLiteArchive) Record(ctx context.Context, session *domain.Session, solution string) error {
	if session == nil {
		return fmt.Errorf("record session: nil session")
	}

	transcriptJSON, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	return shared.RetryOnSQLiteConflict(ctx, 3, 100*time.Millisecond, func() error {
		return a.recordOnce(ctx, session, string(transcriptJSON), solution)
	})
}

func (a *SQLiteArchive) recordOnce(ctx context.Context, session *domain.Session, transcriptJSON, solution string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	query := `
	INSERT INTO resolved_sessions (session_id, question, transcript_json, hint_count, solution, created_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		transcript_json = excluded.transcript_json,
		hint_count = excluded.hint_count,
		solution = excluded.solution,
		resolved_at = excluded.resolved_at`

	_, err := a.db.ExecContext(ctx, query,
		session.ID, session.Question, transcriptJSON, session.HintCount, solution,
		session.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert resolved session: %w", err)
	}
	return nil
}

// Get retrieves an archived session by id. It returns ErrNotFound when absent.
func (a *SQLiteArchive) Get(ctx context.Context, sessionID string) (*ArchivedSession, error) {
	query := `
		SELECT session_id, question, transcript_json, hint_count, solution, created_at, resolved_at
		FROM resolved_sessions WHERE session_id = ?`

	row := a.db.QueryRowContext(ctx, query, sessionID)

	var out ArchivedSession
	var transcriptJSON string
	var createdAt, resolvedAt int64

	err := row.Scan(&out.SessionID, &out.Question, &transcriptJSON, &out.HintCount, &out.Solution, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan resolved session: %w", err)
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &out.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	out.CreatedAt = time.Unix(createdAt, 0)
	out.ResolvedAt = time.Unix(resolvedAt, 0)
	return &out, nil
}

// Count returns the number of archived sessions.
func (a *SQLiteArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolved_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count resolved sessions: %w", err)
	}
	return n, nil
}

// Prune removes archived sessions resolved before the cutoff.
func (a *SQLiteArchive) Prune(ctx context.Context, before time.Time) (int64, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	result, err := a.db.ExecContext(ctx, `DELETE FROM resolved_sessions WHERE resolved_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune resolved sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		slog.Info("Pruned archived sessions", "count", rows)
	}
	return rows, nil
}

// Close closes the database connection.
func (a *SQLiteArchive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

var _ Archive = (*SQLiteArchive)(nil)
