// Package upstream carries raw DNS queries to the configured upstream
// resolvers. Transport is pooled UDP with a TCP retry when a reply comes
// back truncated, and failover across servers with cooldown-based health
// tracking.
package upstream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
	"github.com/cairndns/cairndns/internal/helpers"
)

// Transport defaults, used when the corresponding Options field is zero.
const (
	DefaultPoolSize   = 256 // UDP connections kept per upstream
	DefaultUDPTimeout = 3 * time.Second
	DefaultTCPTimeout = 5 * time.Second
	DefaultMaxRetries = 3 // UDP attempts per upstream on timeout

	maxServers       = 3         // Servers beyond this are ignored
	recoveryCooldown = time.Hour // How long a failed server sits out
	recvBufferSize   = 4096
	defaultPort      = "53"
)

// ErrNoServers is returned when no upstream could be queried at all.
var ErrNoServers = errors.New("no upstream servers available")

// Client sends a raw DNS query upstream and returns the raw reply bytes.
// Timeouts surface as net.Error timeouts; other failures as wrapped
// network errors. Close releases the transport state.
type Client interface {
	Query(ctx context.Context, raw []byte) ([]byte, error)
	Close() error
}

// Options configures a Forwarder. Zero fields fall back to the package
// defaults.
type Options struct {
	// Servers lists upstream resolvers as "ip" or "ip:port". A bare IP
	// gets port 53. At most three servers are used.
	Servers []string

	// PoolSize is the number of pre-dialed UDP connections kept per
	// server.
	PoolSize int

	// UDPTimeout bounds a single UDP attempt. TCPTimeout bounds the
	// whole TCP exchange after a truncated reply.
	UDPTimeout time.Duration
	TCPTimeout time.Duration

	// MaxRetries is how many UDP attempts are made per server before
	// failing over. Only timeouts are retried.
	MaxRetries int

	// DisableTCPFallback turns off the TCP retry on truncated replies.
	DisableTCPFallback bool

	Logger *slog.Logger
}

// Forwarder implements Client over pooled UDP sockets.
//
// Failover: servers are tried in configured order, skipping any still in
// cooldown from an earlier failure. A server that answers is marked
// healthy again immediately. When every server is cooling down the slate
// is wiped and all of them become candidates, so stale health state can
// never blackhole traffic.
//
// Connection pooling: each server gets a buffered channel of pre-dialed
// UDP connections. Attempts borrow from the pool and fall back to a
// transient connection when it runs dry; broken connections are dropped
// rather than returned.
type Forwarder struct {
	servers []string

	udpTimeout  time.Duration
	tcpTimeout  time.Duration
	maxRetries  int
	tcpFallback bool
	logger      *slog.Logger

	// Upstream health tracking
	healthMu sync.Mutex
	failedAt map[string]time.Time

	// UDP connection pool per server
	poolMu   sync.Mutex
	pools    map[string]chan *net.UDPConn
	poolSize int
	closed   bool
}

// New creates a Forwarder, applying defaults for unset options. Without
// servers it forwards to 8.8.8.8.
func New(opts Options) *Forwarder {
	servers := opts.Servers
	if len(servers) == 0 {
		servers = []string{"8.8.8.8"}
	}
	if len(servers) > maxServers {
		servers = servers[:maxServers]
	}
	normalized := make([]string, len(servers))
	for i, s := range servers {
		normalized[i] = withDefaultPort(s)
	}

	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	udpTimeout := opts.UDPTimeout
	if udpTimeout <= 0 {
		udpTimeout = DefaultUDPTimeout
	}
	tcpTimeout := opts.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = DefaultTCPTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Forwarder{
		servers:     normalized,
		udpTimeout:  udpTimeout,
		tcpTimeout:  tcpTimeout,
		maxRetries:  maxRetries,
		tcpFallback: !opts.DisableTCPFallback,
		logger:      logger,
		failedAt:    map[string]time.Time{},
		pools:       map[string]chan *net.UDPConn{},
		poolSize:    poolSize,
	}
}

// withDefaultPort appends port 53 unless addr already carries a port.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

// Query sends raw to the first healthy upstream and returns its reply.
// Servers that fail are put in cooldown and the next one is tried.
func (f *Forwarder) Query(ctx context.Context, raw []byte) ([]byte, error) {
	var lastErr error
	for _, server := range f.candidates() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := f.queryServer(ctx, server, raw)
		if err != nil {
			lastErr = fmt.Errorf("upstream %s: %w", server, err)
			f.markFailed(server)
			f.logger.Debug("upstream query failed", "server", server, "err", err)
			continue
		}
		f.markHealthy(server)
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoServers
}

// Close releases all pooled connections. Queries issued after Close fail
// with net.ErrClosed; connections still checked out are closed when they
// are released.
func (f *Forwarder) Close() error {
	f.poolMu.Lock()
	defer f.poolMu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, ch := range f.pools {
	drain:
		for {
			select {
			case conn := <-ch:
				_ = conn.Close()
			default:
				break drain
			}
		}
	}
	f.pools = nil
	return nil
}

// candidates returns the servers worth trying, in configured order. When
// every server is in cooldown the failure state is cleared and the full
// list returned.
func (f *Forwarder) candidates() []string {
	healthy := make([]string, 0, len(f.servers))
	for _, s := range f.servers {
		if f.canTry(s) {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}

	f.healthMu.Lock()
	f.failedAt = map[string]time.Time{}
	f.healthMu.Unlock()
	return f.servers
}

// canTry reports whether a server is healthy or has served its cooldown.
func (f *Forwarder) canTry(server string) bool {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()

	failedAt, ok := f.failedAt[server]
	if !ok {
		return true
	}
	if time.Since(failedAt) >= recoveryCooldown {
		delete(f.failedAt, server)
		return true
	}
	return false
}

// markFailed records the failure time for a server. Repeat failures keep
// the original timestamp so the cooldown runs from the first one.
func (f *Forwarder) markFailed(server string) {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	if _, ok := f.failedAt[server]; !ok {
		f.failedAt[server] = time.Now()
	}
}

// markHealthy clears the failure state for a server.
func (f *Forwarder) markHealthy(server string) {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	delete(f.failedAt, server)
}

// queryServer runs UDP attempts against one server, retrying timeouts up
// to maxRetries. Other errors fail fast so the caller moves on to the
// next server.
func (f *Forwarder) queryServer(ctx context.Context, server string, raw []byte) ([]byte, error) {
	pool, err := f.ensurePool(server)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range f.maxRetries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := f.attempt(ctx, pool, server, raw)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTimeout(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isTimeout reports whether err is a timeout worth retrying.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// attempt sends one UDP query and reads the reply. A truncated reply
// triggers the TCP retry when enabled.
func (f *Forwarder) attempt(ctx context.Context, pool chan *net.UDPConn, server string, raw []byte) ([]byte, error) {
	conn, pooled, err := f.acquire(ctx, pool, server)
	if err != nil {
		return nil, err
	}

	connOK := true
	defer func() {
		f.release(conn, pool, pooled, connOK)
	}()

	// Deadline is the sooner of the per-attempt timeout and the context
	// deadline.
	deadline := time.Now().Add(f.udpTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(raw); err != nil {
		connOK = false
		return nil, err
	}

	buf := make([]byte, recvBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		connOK = false
		return nil, err
	}
	resp := buf[:n:n] // Limit capacity so the buffer tail is never reused

	if f.tcpFallback && dns.IsTruncated(resp) {
		return f.queryTCP(ctx, server, raw)
	}
	return resp, nil
}

// ensurePool returns the connection pool for a server, dialing it on
// first use. Pre-dialing happens outside the lock; a partially filled
// pool is fine, attempts fall back to transient connections.
func (f *Forwarder) ensurePool(server string) (chan *net.UDPConn, error) {
	f.poolMu.Lock()
	if f.closed {
		f.poolMu.Unlock()
		return nil, net.ErrClosed
	}
	if ch, ok := f.pools[server]; ok {
		f.poolMu.Unlock()
		return ch, nil
	}
	ch := make(chan *net.UDPConn, f.poolSize)
	f.pools[server] = ch
	f.poolMu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	for range f.poolSize {
		conn, _ := net.DialUDP("udp", nil, addr)
		if conn == nil {
			break // partial pool is acceptable
		}
		ch <- conn
	}
	return ch, nil
}

// acquire hands out a pooled connection, or dials a transient one when
// the pool is empty.
func (f *Forwarder) acquire(ctx context.Context, pool chan *net.UDPConn, server string) (*net.UDPConn, bool, error) {
	select {
	case conn := <-pool:
		return conn, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
		addr, err := net.ResolveUDPAddr("udp", server)
		if err != nil {
			return nil, false, err
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return nil, false, err
		}
		return conn, false, nil
	}
}

// release returns a healthy pooled connection, closing transient or
// broken ones. After Close the connection is closed instead of pooled.
func (f *Forwarder) release(conn *net.UDPConn, pool chan *net.UDPConn, pooled, connOK bool) {
	if !connOK || !pooled {
		_ = conn.Close()
		return
	}

	f.poolMu.Lock()
	defer f.poolMu.Unlock()
	if f.closed {
		_ = conn.Close()
		return
	}
	select {
	case pool <- conn:
	default:
		_ = conn.Close() // pool full
	}
}

// queryTCP retries a query over TCP after a truncated UDP reply.
//
// TCP DNS framing (RFC 1035 section 4.2.2):
//
//	+--+--+
//	|Length| 2 bytes, big-endian message length
//	+--+--+
//	|      |
//	| DNS  | Variable length DNS message
//	|      |
//	+------+
func (f *Forwarder) queryTCP(ctx context.Context, server string, raw []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.tcpTimeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// DialContext only bounds the dial; the reads below need the
	// deadline set on the connection itself.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Send the length prefix and request as two writes to avoid the
	// allocation from append(prefix, raw...)
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(raw)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(raw); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen == 0 {
		return nil, errors.New("TCP reply with zero length")
	}

	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
