package chatlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerConversationNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		UserID:         "anon_0123",
		ConversationID: "conv-1",
		Direction:      "outbound",
		EventType:      "user_message",
		Content:        "explain channels",
	})

	path := filepath.Join(dir, "anon_0123", "conv-1.ndjson")
	line := waitForLogLine(t, path)

	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Content != "explain channels" {
		t.Fatalf("unexpected Content: %q", got.Content)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestLoggerAppendsMultipleEvents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Log(Event{UserID: "u", ConversationID: "c", EventType: "user_message", Content: "one"})
	logger.Log(Event{UserID: "u", ConversationID: "c", EventType: "assistant_message", Content: "two"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "u", "c.ndjson"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: false, Dir: dir}, slog.Default())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Log(Event{UserID: "u", ConversationID: "c", Content: "dropped"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no log files, got %d entries", len(entries))
	}
}

func TestSafePathComponent(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"anon_abc123":       "anon_abc123",
		"../../etc":         ".._.._etc",
		"..":                "unknown",
		"":                  "unknown",
		"conv/with/slashes": "conv_with_slashes",
	}
	for in, want := range cases {
		if got := safePathComponent(in); got != want {
			t.Errorf("safePathComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
