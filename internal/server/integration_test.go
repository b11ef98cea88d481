package server

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/dns"
	"github.com/cairndns/cairndns/internal/resolvers"
	"github.com/cairndns/cairndns/internal/upstream"
)

// startFakeUpstream runs a scripted resolver on a loopback UDP socket.
// respond maps each parsed query to a reply; hits counts packets seen.
func startFakeUpstream(t *testing.T, respond func(req dns.Packet) dns.Packet) (string, *atomic.Int64, func()) {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	var hits atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			hits.Add(1)
			req, err := dns.ParsePacket(buf[:n])
			if err != nil || len(req.Questions) == 0 {
				continue
			}
			reply, err := respond(req).Marshal()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(reply, remote)
		}
	}()

	stop := func() {
		_ = conn.Close()
		<-done
	}
	return conn.LocalAddr().String(), &hits, stop
}

func aRecordUpstream(t *testing.T) (string, *atomic.Int64, func()) {
	t.Helper()
	return startFakeUpstream(t, func(req dns.Packet) dns.Packet {
		rec := dns.NewIPRecord(
			dns.NewRRHeader(req.Questions[0].Name, dns.ClassIN, 30),
			net.ParseIP("192.0.2.50"),
		)
		return dns.BuildResponse(req, []dns.Record{rec}, nil, nil)
	})
}

// newStack wires upstream client, cache, resolver, and query handler the
// way the runner does.
func newStack(t *testing.T, upstreamAddr string) (*QueryHandler, *cache.Store, func()) {
	t.Helper()

	client := upstream.New(upstream.Options{
		Servers:            []string{upstreamAddr},
		PoolSize:           2,
		UDPTimeout:         500 * time.Millisecond,
		MaxRetries:         1,
		DisableTCPFallback: true,
	})
	store := cache.New(cache.Options{MaxEntries: 128})
	resolver, err := resolvers.NewCachedForwarding(resolvers.Options{
		Store:           store,
		Client:          client,
		UpstreamTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	h := &QueryHandler{Resolver: resolver, Stats: NewDNSStats(), Timeout: 3 * time.Second}
	return h, store, func() { _ = client.Close() }
}

func TestIntegration_SecondQueryServedFromCache(t *testing.T) {
	upAddr, hits, stopUp := aRecordUpstream(t)
	defer stopUp()
	h, store, cleanup := newStack(t, upAddr)
	defer cleanup()
	client, stop := startUDP(t, h, nil, 16)
	defer stop()

	reply1, ok := exchange(t, client, queryBytes(t, 0x1111, "cached.example.com"), 3*time.Second)
	require.True(t, ok, "first query should be answered")

	resp1, err := dns.ParsePacket(reply1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1111), resp1.Header.ID)
	assert.Equal(t, dns.RCodeNoError, dns.RCodeFromFlags(resp1.Header.Flags))
	require.Len(t, resp1.Answers, 1)

	rec1, isIP := resp1.Answers[0].(*dns.IPRecord)
	require.True(t, isIP)
	assert.Equal(t, "192.0.2.50", rec1.Addr.String())
	assert.Equal(t, uint32(30), rec1.Header().TTL)

	// Same question again, new transaction id.
	reply2, ok := exchange(t, client, queryBytes(t, 0x2222, "cached.example.com"), 3*time.Second)
	require.True(t, ok, "second query should be answered")

	resp2, err := dns.ParsePacket(reply2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2222), resp2.Header.ID, "cached reply must carry the new transaction id")
	require.Len(t, resp2.Answers, 1)

	rec2, isIP := resp2.Answers[0].(*dns.IPRecord)
	require.True(t, isIP)
	assert.Equal(t, "192.0.2.50", rec2.Addr.String())
	ttl := rec2.Header().TTL
	assert.GreaterOrEqual(t, ttl, uint32(1))
	assert.LessOrEqual(t, ttl, uint32(30))

	assert.Equal(t, int64(1), hits.Load(), "only the first query should reach upstream")
	cstats := store.Stats()
	assert.Equal(t, uint64(1), cstats.Hits)
	assert.Equal(t, uint64(1), cstats.Misses)
}

func TestIntegration_UDPAndTCPShareTheCache(t *testing.T) {
	upAddr, hits, stopUp := aRecordUpstream(t)
	defer stopUp()
	h, _, cleanup := newStack(t, upAddr)
	defer cleanup()

	udpClient, stopUDP := startUDP(t, h, nil, 16)
	defer stopUDP()
	tcpAddr, stopTCP := startTCP(t, h)
	defer stopTCP()

	_, ok := exchange(t, udpClient, queryBytes(t, 1, "shared.example.com"), 3*time.Second)
	require.True(t, ok)

	conn, err := net.Dial("tcp", tcpAddr)
	require.NoError(t, err)
	defer conn.Close()
	tcpSend(t, conn, queryBytes(t, 2, "shared.example.com"))
	resp, err := dns.ParsePacket(tcpRecv(t, conn))
	require.NoError(t, err)

	assert.Equal(t, uint16(2), resp.Header.ID)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, int64(1), hits.Load(), "TCP query should hit the shared cache")
}

func TestIntegration_NXDOMAINNotCached(t *testing.T) {
	upAddr, hits, stopUp := startFakeUpstream(t, func(req dns.Packet) dns.Packet {
		return dns.BuildErrorResponse(req, uint16(dns.RCodeNXDomain))
	})
	defer stopUp()
	h, store, cleanup := newStack(t, upAddr)
	defer cleanup()
	client, stop := startUDP(t, h, nil, 16)
	defer stop()

	for id := range 2 {
		reply, ok := exchange(t, client, queryBytes(t, uint16(id+1), "missing.example.com"), 3*time.Second)
		require.True(t, ok)
		resp, err := dns.ParsePacket(reply)
		require.NoError(t, err)
		assert.Equal(t, dns.RCodeNXDomain, dns.RCodeFromFlags(resp.Header.Flags))
	}

	assert.Equal(t, int64(2), hits.Load(), "negative answers are not cached")
	assert.Equal(t, 0, store.Len())
}

func TestIntegration_DeadUpstreamMapsToServfail(t *testing.T) {
	// A freed ephemeral port with nobody listening.
	deadAddr := freePort(t)
	h, _, cleanup := newStack(t, deadAddr)
	defer cleanup()
	client, stop := startUDP(t, h, nil, 16)
	defer stop()

	reply, ok := exchange(t, client, queryBytes(t, 0x0F0F, "unreachable.example.com"), 5*time.Second)
	require.True(t, ok, "client should get an error response, not silence")

	resp, err := dns.ParsePacket(reply)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0F0F), resp.Header.ID)
	assert.Equal(t, dns.RCodeServFail, dns.RCodeFromFlags(resp.Header.Flags))
}
