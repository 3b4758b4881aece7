package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 15 * time.Minute

// StartCleanupWorker runs a background goroutine that periodically
// deletes conversations idle past the TTL. It stops when ctx is done.
func StartCleanupWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Conversation cleanup worker started", "interval", cleanupWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupIdleConversations(ctx, ttl)
				if err != nil {
					slog.Error("Cleanup worker failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Cleanup worker removed idle conversations", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
