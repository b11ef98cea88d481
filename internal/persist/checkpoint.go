package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/cairndns/cairndns/internal/cache"
)

// DefaultCheckpointInterval is used when no interval is configured.
const DefaultCheckpointInterval = 5 * time.Minute

// Checkpointer periodically saves the store snapshot so a crash loses at
// most one interval of cache warmth. Save failures are logged and
// retried on the next tick; they never stop the resolver.
type Checkpointer struct {
	store    *cache.Store
	adapter  Adapter
	interval time.Duration
	logger   *slog.Logger
}

// NewCheckpointer creates a checkpointer. A non-positive interval selects
// DefaultCheckpointInterval; a nil logger falls back to slog.Default().
func NewCheckpointer(store *cache.Store, adapter Adapter, interval time.Duration, logger *slog.Logger) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpointer{store: store, adapter: adapter, interval: interval, logger: logger}
}

// Run checkpoints on the configured interval until ctx is cancelled.
func (c *Checkpointer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Debug("cache checkpointer started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("cache checkpointer stopped")
			return
		case <-ticker.C:
			_ = c.Checkpoint(ctx)
		}
	}
}

// Checkpoint saves the current snapshot once. The error is also logged,
// so periodic callers may ignore it.
func (c *Checkpointer) Checkpoint(ctx context.Context) error {
	now := time.Now()
	entries := c.store.Snapshot()
	if err := c.adapter.Save(ctx, entries, now); err != nil {
		c.logger.Warn("cache checkpoint failed", "err", err, "entries", len(entries))
		return err
	}
	c.logger.Debug("cache checkpoint written",
		"entries", len(entries),
		"took", time.Since(now))
	return nil
}
