// Package domain holds the core data types shared across the chat
// pipeline: messages, conversations, routing decisions, handler
// responses and extracted actions.
package domain

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks a message written by the learner.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by a capability handler.
	RoleAssistant Role = "assistant"
)

// Language selects the response language for a turn.
type Language string

const (
	// LanguageEnglish is the default.
	LanguageEnglish Language = "en"
	// LanguageBengali selects Bengali responses.
	LanguageBengali Language = "bn"
)

// ParseLanguage normalizes a request language, defaulting to English.
func ParseLanguage(s string) Language {
	if s == string(LanguageBengali) {
		return LanguageBengali
	}
	return LanguageEnglish
}

// Message is one entry in a conversation. Messages are immutable once
// created; conversation order is append-only.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	AgentTag       AgentTag // set on assistant messages only
	Language       Language
	CreatedAt      time.Time
}

// Conversation groups messages for one user. ActiveAgent tracks the
// capability that answered the most recent turn.
type Conversation struct {
	ID          string
	UserID      string
	ActiveAgent AgentTag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
