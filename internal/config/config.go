// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	GeminiAPIKey string
	GeminiModel  string

	// ConfidenceThreshold gates routing fallback to the general
	// handler; ChunkSize and ChunkDelay shape the streamed deltas.
	ConfidenceThreshold float64
	ChunkSize           int
	ChunkDelay          time.Duration

	// HistoryWindow is the number of prior messages supplied to a turn.
	HistoryWindow int

	// ConversationTTL is how long an idle conversation is kept.
	ConversationTTL time.Duration

	ChatLog ChatLogConfig
}

// ChatLogConfig controls NDJSON turn logging.
type ChatLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		DBPath:              getEnv("DB_PATH", "./data/dishari.db"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ConfidenceThreshold: getEnvFloat("ROUTER_CONFIDENCE_THRESHOLD", 0.5),
		ChunkSize:           getEnvInt("STREAM_CHUNK_SIZE", 100),
		ChunkDelay:          time.Duration(getEnvInt("STREAM_CHUNK_DELAY_MS", 25)) * time.Millisecond,
		HistoryWindow:       getEnvInt("HISTORY_WINDOW", 10),
		ConversationTTL:     time.Duration(getEnvInt("CONVERSATION_TTL_HOURS", 24*30)) * time.Hour,
		ChatLog: ChatLogConfig{
			Enabled:   getEnvBool("CHAT_LOG_ENABLED", true),
			Dir:       getEnv("CHAT_LOG_DIR", "./data/logs/chats"),
			QueueSize: getEnvInt("CHAT_LOG_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	// Zero is rejected rather than accepted: the orchestrator treats a
	// non-positive threshold as unset, so 0 would silently become the
	// default instead of disabling the gate.
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("ROUTER_CONFIDENCE_THRESHOLD must be in (0,1]")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("STREAM_CHUNK_SIZE must be > 0")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.ChatLog.Enabled && c.ChatLog.Dir == "" {
		return fmt.Errorf("CHAT_LOG_DIR cannot be empty")
	}
	if c.ChatLog.QueueSize <= 0 {
		return fmt.Errorf("CHAT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
