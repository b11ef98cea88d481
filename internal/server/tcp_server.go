package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cairndns/cairndns/internal/pool"
)

// lenBufPool recycles the 2-byte buffers used for DNS-over-TCP length
// prefixes.
var lenBufPool = pool.New(func() *[]byte {
	buf := make([]byte, 2)
	return &buf
})

// TCP server configuration constants.
const (
	maxTCPMessageSize        = 65535            // Maximum DNS message size over TCP
	tcpReadTimeout           = 10 * time.Second // Read timeout per message
	tcpConnectionIdleTimeout = 30 * time.Second // Idle timeout for connection
	maxTCPConnectionsPerIP   = 10               // Max concurrent connections per IP
	maxQueriesPerConnection  = 100              // Max queries before closing connection
)

// TCPServer handles DNS queries over TCP with connection pipelining.
//
// Run opens one listener per CPU core with SO_REUSEPORT so the kernel
// spreads incoming connections across accept loops. Each accepted
// connection gets its own goroutine that reads length-prefixed queries
// (RFC 1035 Section 4.2.2) until the idle timeout, the per-connection
// query cap, or shutdown. Per-IP connection limits stop a single client
// from exhausting the server.
type TCPServer struct {
	Logger  *slog.Logger  // Optional logger
	Handler *QueryHandler // Query processor

	listeners []net.Listener

	wg sync.WaitGroup // Tracks accept loops and active connections

	mu        sync.Mutex
	connPerIP map[string]int
}

// Run starts the TCP server and blocks until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context, addr string) error {
	socketCount := runtime.NumCPU()
	s.listeners = make([]net.Listener, 0, socketCount)

	s.mu.Lock()
	if s.connPerIP == nil {
		s.connPerIP = map[string]int{}
	}
	s.mu.Unlock()

	for range socketCount {
		ln, err := listenTCPReusePort(ctx, addr)
		if err != nil {
			for _, l := range s.listeners {
				_ = l.Close()
			}
			return err
		}
		s.listeners = append(s.listeners, ln)

		listener := ln
		s.wg.Go(func() {
			s.acceptLoop(ctx, listener)
		})
	}

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

// acceptLoop accepts connections on one listener until it closes.
func (s *TCPServer) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && s.Logger != nil {
				s.Logger.Debug("tcp accept failed", "err", err)
			}
			return
		}

		remoteIP := remoteIPString(c.RemoteAddr())

		if !s.tryAcquireConn(remoteIP) {
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "tcp connection limit exceeded", "ip", remoteIP)
			}
			_ = c.Close()
			continue
		}

		conn := c
		ip := remoteIP
		s.wg.Go(func() {
			s.handleConnection(ctx, conn, ip)
		})
	}
}

// handleConnection serves pipelined DNS queries on a single TCP
// connection until the idle timeout, the query cap, an IO error, or
// shutdown ends it.
func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn, ip string) {
	defer s.releaseConn(ip)
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))

	for range maxQueriesPerConnection {
		if ctx.Err() != nil {
			return
		}

		msg, ok := s.readMessage(conn)
		if !ok {
			return
		}
		if len(msg) == 0 {
			continue
		}

		// Reset idle timeout after activity
		_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))

		if s.Handler == nil {
			return
		}

		res := s.Handler.Handle(ctx, "tcp", ip, msg)
		if len(res.ResponseBytes) == 0 {
			continue
		}

		if !s.writeMessage(conn, res.ResponseBytes) {
			return
		}
	}
}

// readMessage reads one length-prefixed DNS message.
//
// Wire format:
//
//	+--+--+
//	|Length| 2 bytes, big-endian
//	+--+--+
//	| DNS  | Length bytes
//	+------+
func (s *TCPServer) readMessage(conn net.Conn) ([]byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	lenBufPtr := lenBufPool.Get()
	lenBuf := *lenBufPtr
	_, err := io.ReadFull(conn, lenBuf)
	if err != nil {
		lenBufPool.Put(lenBufPtr)
		return nil, false
	}
	msgLen := int(binary.BigEndian.Uint16(lenBuf))
	lenBufPool.Put(lenBufPtr)

	if msgLen == 0 {
		return nil, true // empty message, caller skips it
	}
	if msgLen > maxTCPMessageSize {
		return nil, false
	}

	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, false
	}
	return msg, true
}

// writeMessage writes a length-prefixed DNS message using writev
// (net.Buffers) to avoid allocating a combined buffer.
func (s *TCPServer) writeMessage(conn net.Conn, response []byte) bool {
	respLen := len(response)
	if respLen > maxTCPMessageSize {
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(tcpReadTimeout))

	lenBufPtr := lenBufPool.Get()
	lenBuf := *lenBufPtr
	binary.BigEndian.PutUint16(lenBuf, uint16(respLen))

	bufs := net.Buffers{lenBuf, response}
	_, err := bufs.WriteTo(conn)

	lenBufPool.Put(lenBufPtr)
	return err == nil
}

// Stop closes the listeners and waits up to timeout for connections to
// finish.
func (s *TCPServer) Stop(timeout time.Duration) error {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}

	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("tcp server: timeout waiting for connections")
	}
}

// listenTCPReusePort creates a TCP listener with SO_REUSEPORT enabled so
// multiple listeners can bind the same address and the kernel distributes
// connections across them.
func listenTCPReusePort(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}

// remoteIPString extracts the IP address from a network address for
// per-IP connection tracking.
func remoteIPString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err == nil {
		return host
	}
	return addr.String()
}

// tryAcquireConn attempts to increment the connection count for an IP.
// Returns false if the limit would be exceeded.
func (s *TCPServer) tryAcquireConn(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.connPerIP[ip]
	if cur >= maxTCPConnectionsPerIP {
		return false
	}
	s.connPerIP[ip] = cur + 1
	return true
}

// releaseConn decrements the connection count for an IP.
func (s *TCPServer) releaseConn(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.connPerIP[ip]
	if cur <= 1 {
		delete(s.connPerIP, ip)
		return
	}
	s.connPerIP[ip] = cur - 1
}
