package store

import (
	"context"
	"log/slog"
	"time"
)

// ExpireCallback is called with the ids removed by a sweep.
type ExpireCallback func(ids []string)

// sweepInterval picks how often to sweep for a given ttl.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle for longer than ttl. A non-positive ttl disables the worker.
func StartTTLWorker(ctx context.Context, s Store, ttl time.Duration, onExpire ExpireCallback) {
	if ttl <= 0 {
		slog.Info("TTL worker disabled")
		return
	}

	interval := sweepInterval(ttl)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepIdleSessions(ctx, s, ttl, onExpire)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepIdleSessions(ctx context.Context, s Store, ttl time.Duration, onExpire ExpireCallback) []string {
	expired := s.ExpireIdle(ctx, time.Now().Add(-ttl))
	if len(expired) == 0 {
		return nil
	}

	slog.Info("TTL worker expired idle sessions", "count", len(expired), "remaining", s.Len())
	if onExpire != nil {
		onExpire(expired)
	}
	return expired
}

// Pruner deletes archived records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

const pruneInterval = time.Hour

// StartArchivePruner periodically deletes archived sessions resolved more
// than retention ago. A non-positive retention disables the pruner.
func StartArchivePruner(ctx context.Context, p Pruner, retention time.Duration) {
	if p == nil || retention <= 0 {
		slog.Info("Archive pruner disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		slog.Info("Archive pruner started", "interval", pruneInterval, "retention", retention)

		pruneArchive(ctx, p, retention)
		for {
			select {
			case <-ticker.C:
				pruneArchive(ctx, p, retention)
			case <-ctx.Done():
				slog.Info("Archive pruner shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneArchive(ctx context.Context, p Pruner, retention time.Duration) int64 {
	n, err := p.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		slog.Error("Failed to prune archive", "error", err)
		return 0
	}
	return n
}
