package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tahmidanik/dishari/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		active_agent TEXT NOT NULL DEFAULT 'general',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role TEXT NOT NULL,
		agent_tag TEXT,
		language TEXT NOT NULL DEFAULT 'en',
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetConversation retrieves a conversation, or nil if absent.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, user_id, active_agent, created_at, updated_at
		FROM conversations WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var conv domain.Conversation
	var activeAgent string
	var createdAt, updatedAt int64

	err := row.Scan(&conv.ID, &conv.UserID, &activeAgent, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	conv.ActiveAgent = domain.AgentTag(activeAgent)
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	return &conv, nil
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ActiveAgent == "" {
		conv.ActiveAgent = domain.TagGeneral
	}
	query := `
		INSERT INTO conversations (id, user_id, active_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, string(conv.ActiveAgent),
		conv.CreatedAt.Unix(), conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// RecentMessages returns the last n messages in conversation order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	// Fetch the tail newest-first, then reverse into conversation order.
	query := `
		SELECT id, conversation_id, role, agent_tag, language, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY seq DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent messages rows", "error", closeErr)
		}
	}()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var agentTag sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&m.ID, &m.ConversationID, (*string)(&m.Role),
			&agentTag, (*string)(&m.Language), &m.Content, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		m.AgentTag = domain.AgentTag(agentTag.String)
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendTurn appends the user and assistant messages of one turn and
// advances the active-agent pointer, in a single transaction. Retried
// on SQLITE_BUSY since streaming requests can overlap the cleanup
// worker.
func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID string, user, assistant domain.Message) error {
	return withBusyRetry(ctx, func() error {
		return s.appendTurn(ctx, conversationID, user, assistant)
	})
}

func (s *SQLiteStore) appendTurn(ctx context.Context, conversationID string, user, assistant domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turn: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := `
		INSERT INTO messages (id, conversation_id, role, agent_tag, language, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, m := range []domain.Message{user, assistant} {
		var agentTag interface{}
		if m.AgentTag != "" {
			agentTag = string(m.AgentTag)
		}
		if _, err := tx.ExecContext(ctx, insert,
			m.ID, conversationID, string(m.Role), agentTag,
			string(m.Language), m.Content, m.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	update := `UPDATE conversations SET active_agent = ?, updated_at = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, update, string(assistant.AgentTag), time.Now().Unix(), conversationID)
	if err != nil {
		return fmt.Errorf("update active agent: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append turn: %w", err)
	}
	return nil
}

// CleanupIdleConversations deletes conversations idle past the TTL
// along with their messages.
func (s *SQLiteStore) CleanupIdleConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN
			(SELECT id FROM conversations WHERE updated_at < ?)`, threshold); err != nil {
		return 0, fmt.Errorf("delete idle messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete idle conversations: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
