// Package resolvers implements the resolution engine behind the servers:
// answer from the record store when a fresh entry exists, otherwise
// forward the query upstream, cache what comes back, and reply.
//
// Caching strategy:
//
// Entries are keyed on (name, type, class) with the name normalized to
// lowercase; transaction ids are never part of the key. An entry's TTL is
// the minimum TTL of the upstream answer section, and hits are served
// with the remaining lifetime on the wire. Only NOERROR replies with
// answers and a positive minimum TTL are cached; NXDOMAIN, NODATA, and
// zero-TTL answers go back to the client but never into the store.
//
// Thundering herd:
//
// Concurrent misses for the same key are coalesced into a single upstream
// flight via singleflight. The flight runs on a detached context so that
// one client hanging up never cancels the request for the others, and a
// finished flight populates the cache even when every waiter is gone.
package resolvers

import (
	"context"

	"github.com/cairndns/cairndns/internal/dns"
)

// Resolver is the interface between the transport layer and the
// resolution engine. Resolve receives the decoded query together with its
// raw wire bytes and returns a complete wire-format response carrying the
// client's transaction id.
type Resolver interface {
	Resolve(ctx context.Context, req dns.Packet, raw []byte) ([]byte, error)
}
