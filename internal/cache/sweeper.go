package cache

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the sweeper scans for expired entries
// when no interval is configured.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically removes expired entries from a Store. Lookups
// already treat expired entries as absent; the sweeper only reclaims
// memory.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper for store. A non-positive interval selects
// DefaultSweepInterval; a nil logger falls back to slog.Default().
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("cache sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("cache sweeper stopped")
			return
		case <-ticker.C:
			if removed := s.store.EvictExpired(time.Now()); removed > 0 {
				s.logger.Debug("expired cache entries removed",
					"removed", removed,
					"remaining", s.store.Len())
			}
		}
	}
}
