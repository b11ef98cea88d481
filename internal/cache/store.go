package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
)

// ErrInvalidTTL is returned by Put for a zero or negative TTL. Negative
// answers and zero-TTL records are never cached.
var ErrInvalidTTL = errors.New("cache entry TTL must be positive")

// Options configures a Store.
type Options struct {
	// MaxEntries bounds the number of entries. Zero or negative means
	// unbounded. On overflow, expired entries are purged first; if the
	// store is still over the bound, the soonest-expiring entry is
	// dropped. There is no promotion on hit: the upstream TTL governs
	// freshness, not access recency.
	MaxEntries int
}

// Store is a thread-safe TTL cache of DNS answer sets.
//
// Concurrency discipline: Get takes only the read lock and treats expired
// entries as absent; physical removal of expired entries is left to
// EvictExpired (driven by the Sweeper). Put, EvictExpired, and Clear take
// the write lock and replace or remove whole entries, so readers never
// observe a half-written entry.
type Store struct {
	mu   sync.RWMutex
	data map[Key]*Entry

	maxEntries int

	hits       atomic.Uint64
	misses     atomic.Uint64
	insertions atomic.Uint64
	evictions  atomic.Uint64
}

// Stats holds store counters for the admin API. Evictions counts TTL- and
// capacity-driven removals; Clear is tracked by its own return value.
type Stats struct {
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Insertions uint64 `json:"insertions"`
	Evictions  uint64 `json:"evictions"`
}

// New creates an empty Store.
func New(opts Options) *Store {
	return &Store{
		data:       map[Key]*Entry{},
		maxEntries: opts.MaxEntries,
	}
}

// MaxEntries returns the configured capacity, zero meaning unbounded.
func (s *Store) MaxEntries() int {
	return s.maxEntries
}

// Get retrieves the entry for key iff it is present and fresh. An entry
// whose expiry has passed is reported as absent even before the Sweeper
// removes it.
func (s *Store) Get(key Key) (*Entry, bool) {
	now := time.Now()

	s.mu.RLock()
	e := s.data[key]
	s.mu.RUnlock()

	if e == nil || e.Expired(now) {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return e, true
}

// Put inserts or atomically replaces the entry for key. The TTL must be
// positive; callers are expected to have clamped it already.
func (s *Store) Put(key Key, answers, authority, additional []dns.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}

	now := time.Now()
	e := &Entry{
		Key:         key,
		Answers:     answers,
		Authority:   authority,
		Additional:  additional,
		StoredAt:    now,
		OriginalTTL: ttl,
		ExpiresAt:   now.Add(ttl),
	}

	s.mu.Lock()
	s.data[key] = e
	if s.maxEntries > 0 && len(s.data) > s.maxEntries {
		s.evictOverflowLocked(now)
	}
	s.mu.Unlock()

	s.insertions.Add(1)
	return nil
}

// Restore inserts pre-built entries, preserving their stored-at and expiry
// times. Entries already expired at now are skipped. Returns the number of
// entries inserted. Used when reloading a persisted snapshot at startup.
func (s *Store) Restore(entries []Entry, now time.Time) int {
	restored := 0

	s.mu.Lock()
	for i := range entries {
		e := entries[i]
		if e.Expired(now) {
			continue
		}
		s.data[e.Key] = &e
		restored++
	}
	if s.maxEntries > 0 && len(s.data) > s.maxEntries {
		s.evictOverflowLocked(now)
	}
	s.mu.Unlock()

	s.insertions.Add(uint64(restored))
	return restored
}

// EvictExpired removes every entry whose expiry is at or before now and
// returns the count. Idempotent; safe concurrently with Get and Put.
func (s *Store) EvictExpired(now time.Time) int {
	removed := 0

	s.mu.Lock()
	for k, e := range s.data {
		if e.Expired(now) {
			delete(s.data, k)
			removed++
		}
	}
	s.mu.Unlock()

	s.evictions.Add(uint64(removed))
	return removed
}

// Snapshot returns a consistent point-in-time copy of all entries,
// including any that have expired but not yet been swept. Entries are
// value copies; the record slices are shared but immutable.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, *e)
	}
	s.mu.RUnlock()
	return out
}

// Len returns the current entry count, expired-but-unswept entries
// included.
func (s *Store) Len() int {
	s.mu.RLock()
	n := len(s.data)
	s.mu.RUnlock()
	return n
}

// Clear unconditionally removes every entry and returns the count.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.data)
	s.data = map[Key]*Entry{}
	s.mu.Unlock()
	return n
}

// Stats returns a copy of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Insertions: s.insertions.Load(),
		Evictions:  s.evictions.Load(),
	}
}

// evictOverflowLocked shrinks the store back to maxEntries: expired
// entries first, then soonest-expiring. Caller must hold the write lock.
func (s *Store) evictOverflowLocked(now time.Time) {
	for k, e := range s.data {
		if len(s.data) <= s.maxEntries {
			return
		}
		if e.Expired(now) {
			delete(s.data, k)
			s.evictions.Add(1)
		}
	}

	for len(s.data) > s.maxEntries {
		var victim Key
		var victimExpiry time.Time
		first := true
		for k, e := range s.data {
			if first || e.ExpiresAt.Before(victimExpiry) {
				victim, victimExpiry = k, e.ExpiresAt
				first = false
			}
		}
		delete(s.data, victim)
		s.evictions.Add(1)
	}
}
