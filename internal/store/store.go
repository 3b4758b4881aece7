// Package store provides conversation persistence interfaces and the
// SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/tahmidanik/dishari/internal/domain"
)

// Repository is the conversation context boundary: it supplies the
// bounded history window at the start of a turn and accepts the two
// messages a successful turn produces.
type Repository interface {
	// GetConversation retrieves a conversation, or nil if absent.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// RecentMessages returns the last n messages of a conversation in
	// conversation order (oldest of the window first).
	RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error)

	// AppendTurn appends exactly one user and one assistant message
	// and advances the conversation's active-agent pointer to the
	// assistant message's tag, atomically. Turns that end in error
	// must not be appended.
	AppendTurn(ctx context.Context, conversationID string, user, assistant domain.Message) error

	// CleanupIdleConversations deletes conversations (and their
	// messages) idle for longer than ttl, returning the count.
	CleanupIdleConversations(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
