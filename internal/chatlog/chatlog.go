// Package chatlog writes an NDJSON audit trail of chat turns, one
// file per conversation. Logging is asynchronous and lossy under
// pressure: a full queue drops events rather than stalling a turn.
package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config controls the turn logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one logged chat event.
type Event struct {
	Timestamp      string         `json:"ts"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	Direction      string         `json:"direction"` // outbound = user, inbound = assistant
	EventType      string         `json:"event_type"`
	Agent          string         `json:"agent,omitempty"`
	Content        string         `json:"content"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Logger appends events to per-conversation NDJSON files.
type Logger struct {
	cfg    Config
	queue  chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewLogger creates a turn logger and starts its writer goroutine.
// A disabled config returns a logger whose Log is a no-op.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &Logger{
		cfg:    cfg,
		done:   make(chan struct{}),
		logger: logger,
	}
	if !cfg.Enabled {
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create chat log directory: %w", err)
	}

	l.queue = make(chan Event, cfg.QueueSize)
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues an event. It never blocks: when the queue is full the
// event is dropped and counted against a warning.
func (l *Logger) Log(ev Event) {
	if !l.cfg.Enabled {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("chat log queue full, dropping event",
			"conversation_id", ev.ConversationID, "event_type", ev.EventType)
	}
}

func (l *Logger) run() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		case <-l.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-l.queue:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(ev Event) {
	dir := filepath.Join(l.cfg.Dir, safePathComponent(ev.UserID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		l.logger.Warn("failed to create chat log dir", "error", err)
		return
	}

	path := filepath.Join(dir, safePathComponent(ev.ConversationID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.logger.Warn("failed to open chat log file", "path", path, "error", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("failed to close chat log file", "path", path, "error", closeErr)
		}
	}()

	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("failed to marshal chat log event", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("failed to write chat log event", "path", path, "error", err)
	}
}

// safePathComponent keeps log file names inside the log directory.
func safePathComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	cleaned := string(out)
	if cleaned == "." || cleaned == ".." {
		return "unknown"
	}
	return cleaned
}

// Close stops the writer after draining queued events.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}
