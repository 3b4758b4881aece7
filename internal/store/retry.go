package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// isSQLiteConflict checks for SQLITE_BUSY / "database is locked"
// errors, the two SQLite concurrency failures that warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying SQLite conflicts with exponential
// backoff (100ms, 200ms, 400ms). Other errors return immediately.
func withBusyRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !isSQLiteConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("sqlite busy, retrying", "attempt", i+1, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
