// Package transcript persists conversations, their turns and every
// tool dispatch to SQLite so past sessions can be reviewed.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeFormat sorts lexically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a conversation ID is unknown.
var ErrNotFound = errors.New("conversation not found")

// Conversation summarizes one recorded conversation.
type Conversation struct {
	ID        string
	Model     string
	StartedAt time.Time
	UpdatedAt time.Time
	Turns     int
	// Title is the first user turn, truncated.
	Title string
}

// Turn is one recorded conversation turn.
type Turn struct {
	Seq       int64
	Role      string
	Content   string
	CreatedAt time.Time
}

// Dispatch records one tool request routed to the MCP server.
type Dispatch struct {
	ID        string
	Method    string
	Tool      string
	Arguments string // raw JSON as sent by the model
	IsError   bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store is a SQLite-backed transcript store. All public methods are
// safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates a transcript database at dbPath. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open transcript database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate transcript schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		model      TEXT NOT NULL,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS turns (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dispatches (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		method          TEXT NOT NULL,
		tool            TEXT,
		arguments       TEXT,
		is_error        INTEGER NOT NULL,
		error           TEXT,
		duration_ms     INTEGER NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq);
	CREATE INDEX IF NOT EXISTS idx_dispatches_conversation ON dispatches(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StartConversation creates a conversation record and returns its ID,
// a UUIDv7 so IDs sort by creation time.
func (s *Store) StartConversation(ctx context.Context, model string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate conversation ID: %w", err)
	}
	now := time.Now().UTC().Format(timeFormat)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, model, started_at, updated_at) VALUES (?, ?, ?, ?)`,
		id.String(), model, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id.String(), nil
}

// AppendTurn records a turn and bumps the conversation's updated time.
func (s *Store) AppendTurn(ctx context.Context, conversationID, role, content string) error {
	now := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, now,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return tx.Commit()
}

// RecordDispatch stores a dispatch record. An empty ID is replaced by
// a fresh UUID and a zero CreatedAt by the current time.
func (s *Store) RecordDispatch(ctx context.Context, conversationID string, d Dispatch) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches
			(id, conversation_id, method, tool, arguments, is_error, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		conversationID,
		d.Method,
		d.Tool,
		d.Arguments,
		d.IsError,
		d.Error,
		d.Duration.Milliseconds(),
		d.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}
	return nil
}

// Recent returns up to limit conversations, most recently updated first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.model, c.started_at, c.updated_at,
		        (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id),
		        COALESCE((SELECT t.content FROM turns t
		                  WHERE t.conversation_id = c.id AND t.role = 'user'
		                  ORDER BY t.seq LIMIT 1), '')
		 FROM conversations c
		 ORDER BY c.updated_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var (
			c                Conversation
			started, updated string
		)
		if err := rows.Scan(&c.ID, &c.Model, &started, &updated, &c.Turns, &c.Title); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.StartedAt = parseTime(started)
		c.UpdatedAt = parseTime(updated)
		c.Title = truncate(c.Title, 60)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Turns returns every turn of a conversation in order.
func (s *Store) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, content, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var (
			t       Turn
			created string
		)
		if err := rows.Scan(&t.Seq, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Dispatches returns every dispatch of a conversation in order.
func (s *Store) Dispatches(ctx context.Context, conversationID string) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, COALESCE(tool, ''), COALESCE(arguments, ''), is_error,
		        COALESCE(error, ''), duration_ms, created_at
		 FROM dispatches WHERE conversation_id = ? ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var (
			d          Dispatch
			durationMS int64
			created    string
		)
		if err := rows.Scan(&d.ID, &d.Method, &d.Tool, &d.Arguments, &d.IsError,
			&d.Error, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.Duration = time.Duration(durationMS) * time.Millisecond
		d.CreatedAt = parseTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
