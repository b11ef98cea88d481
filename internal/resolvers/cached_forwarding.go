package resolvers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/dns"
	"github.com/cairndns/cairndns/internal/helpers"
	"github.com/cairndns/cairndns/internal/upstream"
)

// DefaultUpstreamTimeout bounds a whole upstream flight: every retry and
// failover the client performs on behalf of one coalesced query.
const DefaultUpstreamTimeout = 15 * time.Second

// Options configures a CachedForwarding engine. Store and Client are
// required.
type Options struct {
	Store  *cache.Store
	Client upstream.Client
	Logger *slog.Logger

	// MinTTL and MaxTTL clamp the TTL an entry is cached with. Clamping
	// happens after the cacheability decision, so a zero-TTL answer is
	// never promoted into a cacheable one. Zero disables a clamp.
	MinTTL time.Duration
	MaxTTL time.Duration

	// UpstreamTimeout bounds the detached flight. Zero means
	// DefaultUpstreamTimeout.
	UpstreamTimeout time.Duration
}

// CachedForwarding resolves queries from the record store and forwards
// misses to the upstream client, caching eligible answers on the way
// back.
type CachedForwarding struct {
	store           *cache.Store
	client          upstream.Client
	logger          *slog.Logger
	minTTL          time.Duration
	maxTTL          time.Duration
	upstreamTimeout time.Duration

	flights singleflight.Group
}

// NewCachedForwarding wires the engine to its collaborators.
func NewCachedForwarding(opts Options) (*CachedForwarding, error) {
	if opts.Store == nil {
		return nil, errors.New("resolvers: store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("resolvers: upstream client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upstreamTimeout := opts.UpstreamTimeout
	if upstreamTimeout <= 0 {
		upstreamTimeout = DefaultUpstreamTimeout
	}
	return &CachedForwarding{
		store:           opts.Store,
		client:          opts.Client,
		logger:          logger,
		minTTL:          opts.MinTTL,
		maxTTL:          opts.MaxTTL,
		upstreamTimeout: upstreamTimeout,
	}, nil
}

// Resolve implements Resolver.
//
// Hits are answered straight from the store with the remaining TTL on
// the wire. Misses are coalesced per cache key: concurrent queries for
// the same (name, type, class) share one upstream flight. The flight
// runs on its own context, so an abandoning client never cancels it for
// the rest, and a completed flight populates the cache even when every
// waiter has gone away.
func (r *CachedForwarding) Resolve(ctx context.Context, req dns.Packet, raw []byte) ([]byte, error) {
	if len(req.Questions) == 0 {
		return nil, fmt.Errorf("%w: no question", dns.ErrUnsupportedQuery)
	}
	q := req.Questions[0]
	key := cache.NewKey(q.Name, q.Type, q.Class)

	if resp, ok := r.answerFromCache(req, key); ok {
		return resp, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ch := r.flights.DoChan(key.String(), func() (any, error) {
		return r.forward(req, raw, key)
	})
	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}
		return dns.PatchTransactionID(result.Val.([]byte), req.Header.ID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// answerFromCache builds a response from a fresh store entry. The entry's
// records are encoded with the remaining TTL instead of the one they
// arrived with.
func (r *CachedForwarding) answerFromCache(req dns.Packet, key cache.Key) ([]byte, bool) {
	entry, ok := r.store.Get(key)
	if !ok {
		return nil, false
	}
	remaining := entry.RemainingTTL(time.Now())
	if remaining <= 0 {
		// Expired in the window since the lookup.
		return nil, false
	}

	ttl := wireTTL(remaining)
	resp := dns.BuildResponse(req,
		recordsWithTTL(entry.Answers, ttl),
		recordsWithTTL(entry.Authority, ttl),
		recordsWithTTL(entry.Additional, ttl),
	)
	out, err := resp.Marshal()
	if err != nil {
		// An entry that cannot re-encode is useless; fall through to the
		// upstream path.
		r.logger.Warn("cached entry failed to encode", "key", key.String(), "err", err)
		return nil, false
	}
	r.logger.Debug("cache hit", "name", key.Name, "qtype", key.Type, "remaining", remaining)
	return out, true
}

// forward performs the upstream exchange for one coalesced flight. It
// deliberately ignores the waiters' contexts: the flight belongs to every
// client coalesced onto the key, so it gets its own deadline and runs to
// completion even when the last waiter gives up.
func (r *CachedForwarding) forward(req dns.Packet, raw []byte, key cache.Key) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.upstreamTimeout)
	defer cancel()

	reply, err := r.client.Query(ctx, dns.PatchTransactionID(raw, 0))
	if err != nil {
		return nil, err
	}

	resp, err := dns.ParsePacket(reply)
	if err != nil {
		return nil, fmt.Errorf("upstream reply undecodable: %w", err)
	}
	if err := validateReply(req, resp); err != nil {
		return nil, err
	}

	r.maybeCache(key, resp)

	// Waiters patch their own transaction id over this placeholder.
	return dns.PatchTransactionID(reply, 0), nil
}

// maybeCache stores a NOERROR reply whose answer section carries a
// positive minimum TTL. NXDOMAIN, NODATA, and zero-TTL answers stay
// uncached, so the next query for them goes upstream again.
func (r *CachedForwarding) maybeCache(key cache.Key, resp dns.Packet) {
	if dns.RCodeFromFlags(resp.Header.Flags) != dns.RCodeNoError {
		return
	}
	if len(resp.Answers) == 0 {
		return // NODATA
	}
	minTTL := minimumTTL(resp.Answers)
	if minTTL <= 0 {
		return
	}

	ttl := r.clampTTL(time.Duration(minTTL) * time.Second)
	if err := r.store.Put(key, resp.Answers, resp.Authorities, stripOPT(resp.Additionals), ttl); err != nil {
		r.logger.Warn("cache insert rejected", "key", key.String(), "err", err)
		return
	}
	r.logger.Debug("cached upstream answer", "name", key.Name, "qtype", key.Type, "ttl", ttl)
}

// clampTTL applies the configured bounds to a cacheable TTL.
func (r *CachedForwarding) clampTTL(ttl time.Duration) time.Duration {
	if r.maxTTL > 0 && ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	if r.minTTL > 0 && ttl < r.minTTL {
		ttl = r.minTTL
	}
	return ttl
}

// validateReply checks that an upstream reply actually answers the
// question we asked. Guards against mismatched and spoofed replies
// poisoning the cache.
func validateReply(req dns.Packet, resp dns.Packet) error {
	if !resp.Header.IsResponse() {
		return errors.New("upstream reply is not a response")
	}
	if len(resp.Questions) == 0 {
		return errors.New("upstream reply has no question section")
	}

	reqQ, respQ := req.Questions[0], resp.Questions[0]
	if dns.NormalizeName(reqQ.Name) != dns.NormalizeName(respQ.Name) {
		return fmt.Errorf("QNAME mismatch: sent %q, got %q", reqQ.Name, respQ.Name)
	}
	if reqQ.Type != respQ.Type {
		return fmt.Errorf("QTYPE mismatch: sent %d, got %d", reqQ.Type, respQ.Type)
	}
	if reqQ.Class != respQ.Class {
		return fmt.Errorf("QCLASS mismatch: sent %d, got %d", reqQ.Class, respQ.Class)
	}
	return nil
}

// minimumTTL returns the smallest TTL in the answer section, in seconds.
// A single zero-TTL record drags the minimum to zero, which callers treat
// as uncacheable. Returns -1 for an empty section.
func minimumTTL(answers []dns.Record) int64 {
	minTTL := int64(-1)
	for _, a := range answers {
		ttl := int64(a.Header().TTL)
		if minTTL < 0 || ttl < minTTL {
			minTTL = ttl
		}
	}
	return minTTL
}

// wireTTL converts a remaining lifetime to the 32-bit wire seconds field,
// rounding up so a partial second is never served as zero.
func wireTTL(remaining time.Duration) uint32 {
	secs := int64((remaining + time.Second - 1) / time.Second)
	ttl := helpers.ClampInt64ToUint32(secs)
	if ttl == 0 {
		ttl = 1
	}
	return ttl
}

// recordsWithTTL wraps records so they encode with the given TTL.
func recordsWithTTL(records []dns.Record, ttl uint32) []dns.Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]dns.Record, len(records))
	for i, rec := range records {
		out[i] = dns.WithTTL(rec, ttl)
	}
	return out
}

// stripOPT drops EDNS OPT pseudo-records before caching. OPT describes
// the transport exchange it arrived in, not the name being resolved.
func stripOPT(records []dns.Record) []dns.Record {
	var out []dns.Record
	for _, rec := range records {
		if rec.Type() == dns.TypeOPT {
			continue
		}
		out = append(out, rec)
	}
	return out
}
