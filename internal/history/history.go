// Package history provides a SQLite-backed store of completed conversation
// turns. Sessions survive process restarts, and the recall_conversation tool
// searches past content by keyword.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a message sent by the caller.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the agent.
	RoleAssistant Role = "assistant"
)

// Turn is a single persisted conversation message.
type Turn struct {
	// Session identifies the conversation the turn belongs to.
	Session string
	// Role is the author of the turn.
	Role Role
	// Content is the text of the turn.
	Content string
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// TurnStore persists and retrieves conversation turns keyed by session.
// Implementations must be safe for concurrent use.
type TurnStore interface {
	// Append persists a single turn.
	Append(ctx context.Context, session string, role Role, content string) error
	// Recent returns the most recent n turns for the session, ordered
	// oldest-first so they can be replayed into a message slice directly.
	Recent(ctx context.Context, session string, n int) ([]Turn, error)
	// SearchContent returns up to n turns across all sessions whose content
	// contains every word of query (case-insensitive), newest first.
	SearchContent(ctx context.Context, query string, n int) ([]Turn, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a TurnStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath resolves to ~/.ragbox/history.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragbox")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session      TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_turns_session_created
    ON turns (session, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists a single turn for the given session.
func (s *SQLiteStore) Append(ctx context.Context, session string, role Role, content string) error {
	const q = `INSERT INTO turns (session, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, session, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n turns for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order for replay.
func (s *SQLiteStore) Recent(ctx context.Context, session string, n int) ([]Turn, error) {
	const q = `
SELECT session, role, content, created_at FROM (
    SELECT id, session, role, content, created_at
    FROM   turns
    WHERE  session = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, session, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows, "recent")
}

// SearchContent returns up to n turns whose content contains every word of
// query, newest first. An empty query degrades to the newest turns overall.
func (s *SQLiteStore) SearchContent(ctx context.Context, query string, n int) ([]Turn, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT session, role, content, created_at
FROM   turns`)

	args := make([]any, 0, 4)
	words := strings.Fields(strings.ToLower(query))
	if len(words) > 0 {
		conds := make([]string, len(words))
		for i, w := range words {
			conds[i] = "instr(lower(content), ?) > 0"
			args = append(args, w)
		}
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ?")
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows, "search")
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}

func scanTurns(rows *sql.Rows, op string) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var ts int64
		var role string
		if err := rows.Scan(&t.Session, &role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("history: %s scan: %w", op, err)
		}
		t.Role = Role(role)
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: %s rows: %w", op, err)
	}
	return turns, nil
}
