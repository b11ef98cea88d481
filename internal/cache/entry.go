// Package cache implements the TTL-keyed record store shared by the
// resolver engine, the expiry sweeper, the persistence checkpointer, and
// the admin API. Entries are immutable after insertion; freshness is
// governed solely by the TTL the upstream assigned, never by access
// recency.
package cache

import (
	"fmt"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
)

// Key identifies a cached answer set by question name, type, and class.
// Names are lowercased at construction so matching is case-insensitive
// (RFC 4343).
type Key struct {
	Name  string
	Type  uint16
	Class uint16
}

// NewKey builds a Key from question fields, normalizing the name.
func NewKey(name string, qtype, qclass uint16) Key {
	return Key{Name: dns.NormalizeName(name), Type: qtype, Class: qclass}
}

// String renders the key in a stable textual form, used to group in-flight
// upstream queries for the same question.
func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Name, k.Type, k.Class)
}

// Entry is one cached answer set. The record slices hold the upstream
// payload split by message section; they are shared between the store,
// snapshots, and in-flight responses, and must never be mutated. TTL
// adjustment on serve happens at encode time on wrappers.
type Entry struct {
	Key Key

	Answers    []dns.Record
	Authority  []dns.Record
	Additional []dns.Record

	StoredAt    time.Time     // insertion time
	OriginalTTL time.Duration // minimum answer TTL as received from upstream
	ExpiresAt   time.Time     // StoredAt + OriginalTTL, precomputed
}

// RemainingTTL returns how much of the original TTL is left at now.
// Non-positive means expired.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
