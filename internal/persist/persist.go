// Package persist saves cache snapshots across restarts and reloads them
// with their remaining TTLs intact. Two backends share the same row
// semantics: SQLite (default, single file) and Redis (external, expiring
// keys). Persistence failures are never fatal; the resolver keeps serving
// from an empty or partial cache.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/cairndns/cairndns/internal/cache"
)

// ErrPersistence marks backend I/O failures (open, read, write).
var ErrPersistence = errors.New("cache persistence error")

// ErrCorruptData marks stored payloads that no longer decode. Callers log
// and start with an empty cache.
var ErrCorruptData = errors.New("corrupt cache data")

// Adapter is the storage backend contract.
//
// Save writes a snapshot, recording each entry's remaining TTL at save
// time; entries already expired at now are skipped. Load reads the
// snapshot back, drops rows whose TTL ran out while stored, and
// reconstructs StoredAt so every entry expires exactly when it would have
// had the process kept running.
type Adapter interface {
	Save(ctx context.Context, entries []cache.Entry, now time.Time) error
	Load(ctx context.Context, now time.Time) ([]cache.Entry, error)
	Close() error
}
