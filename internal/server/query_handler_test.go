package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairndns/cairndns/internal/dns"
)

// mockResolver lets each test script the resolver outcome.
type mockResolver struct {
	fn func(ctx context.Context, req dns.Packet, raw []byte) ([]byte, error)
}

func (m *mockResolver) Resolve(ctx context.Context, req dns.Packet, raw []byte) ([]byte, error) {
	return m.fn(ctx, req, raw)
}

func queryBytes(t *testing.T, id uint16, name string) []byte {
	t.Helper()
	p := dns.Packet{
		Header: dns.Header{ID: id, Flags: dns.RDFlag},
		Questions: []dns.Question{
			{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
		},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

func answerBytes(t *testing.T, req dns.Packet) []byte {
	t.Helper()
	rec := dns.NewIPRecord(
		dns.NewRRHeader(req.Questions[0].Name, dns.ClassIN, 300),
		net.ParseIP("192.0.2.10"),
	)
	b, err := dns.BuildResponse(req, []dns.Record{rec}, nil, nil).Marshal()
	require.NoError(t, err)
	return b
}

func TestQueryHandler_Success(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(_ context.Context, req dns.Packet, _ []byte) ([]byte, error) {
			return answerBytes(t, req), nil
		}},
		Stats: stats,
	}

	res := h.Handle(context.Background(), "udp", "127.0.0.1", queryBytes(t, 0x1234, "example.com"))

	assert.Equal(t, "ok", res.Source)
	require.NotNil(t, res.ResponseBytes)

	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), resp.Header.ID)
	assert.True(t, resp.Header.IsResponse())
	assert.Len(t, resp.Answers, 1)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.QueriesTotal)
	assert.Equal(t, uint64(1), snap.QueriesUDP)
	assert.Equal(t, uint64(0), snap.ResponsesErr)
}

func TestQueryHandler_ResolverErrorMapsToServfail(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(context.Context, dns.Packet, []byte) ([]byte, error) {
			return nil, errors.New("upstream exploded")
		}},
		Stats: stats,
	}

	res := h.Handle(context.Background(), "udp", "127.0.0.1", queryBytes(t, 0xBEEF, "example.com"))

	assert.Equal(t, "servfail", res.Source)
	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), resp.Header.ID)
	assert.Equal(t, dns.RCodeServFail, dns.RCodeFromFlags(resp.Header.Flags))
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "example.com", resp.Questions[0].Name)

	assert.Equal(t, uint64(1), stats.Snapshot().ResponsesErr)
}

func TestQueryHandler_TimeoutMapsToServfail(t *testing.T) {
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(ctx context.Context, _ dns.Packet, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		Timeout: 10 * time.Millisecond,
	}

	res := h.Handle(context.Background(), "udp", "127.0.0.1", queryBytes(t, 1, "slow.example.com"))

	assert.Equal(t, "timeout", res.Source)
	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeServFail, dns.RCodeFromFlags(resp.Header.Flags))
}

func TestQueryHandler_ShutdownCancellation(t *testing.T) {
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(ctx context.Context, _ dns.Packet, _ []byte) ([]byte, error) {
			return nil, ctx.Err()
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.Handle(ctx, "udp", "127.0.0.1", queryBytes(t, 1, "example.com"))

	assert.Equal(t, "shutdown", res.Source)
	assert.NotNil(t, res.ResponseBytes)
}

func TestQueryHandler_TruncatedQuestionGetsFormerr(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{Resolver: &mockResolver{}, Stats: stats}

	// Header claims one question but the bytes stop at the header.
	req := queryBytes(t, 0x4242, "example.com")[:dns.HeaderSize]
	res := h.Handle(context.Background(), "udp", "127.0.0.1", req)

	assert.Equal(t, "formerr", res.Source)
	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4242), resp.Header.ID)
	assert.Equal(t, dns.RCodeFormErr, dns.RCodeFromFlags(resp.Header.Flags))
	assert.Empty(t, resp.Questions)

	assert.Equal(t, uint64(1), stats.Snapshot().ResponsesErr)
}

func TestQueryHandler_ResponsePacketRefused(t *testing.T) {
	h := &QueryHandler{Resolver: &mockResolver{}}

	p := dns.Packet{
		Header: dns.Header{ID: 7, Flags: dns.QRFlag | dns.RDFlag},
		Questions: []dns.Question{
			{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
		},
	}
	raw, err := p.Marshal()
	require.NoError(t, err)

	res := h.Handle(context.Background(), "udp", "127.0.0.1", raw)

	assert.Equal(t, "refused", res.Source)
	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeRefused, dns.RCodeFromFlags(resp.Header.Flags))
	// The question survives parsing, so the reply echoes it.
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "example.com", resp.Questions[0].Name)
}

func TestQueryHandler_MultipleQuestionsRefused(t *testing.T) {
	h := &QueryHandler{Resolver: &mockResolver{}}

	p := dns.Packet{
		Header: dns.Header{ID: 9},
		Questions: []dns.Question{
			{Name: "a.example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
			{Name: "b.example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
		},
	}
	raw, err := p.Marshal()
	require.NoError(t, err)

	res := h.Handle(context.Background(), "udp", "127.0.0.1", raw)
	assert.Equal(t, "refused", res.Source)
}

func TestQueryHandler_UnreadableHeaderDropped(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{Resolver: &mockResolver{}, Stats: stats}

	res := h.Handle(context.Background(), "udp", "127.0.0.1", []byte{0xDE, 0xAD, 0xBE})

	assert.Equal(t, "parse-error", res.Source)
	assert.Nil(t, res.ResponseBytes)
	assert.Equal(t, uint64(1), stats.Snapshot().ResponsesErr)
}

func TestQueryHandler_OversizeMessageGetsFormerr(t *testing.T) {
	h := &QueryHandler{Resolver: &mockResolver{}}

	raw := make([]byte, dns.MaxIncomingDNSMessageSize+1)
	copy(raw, queryBytes(t, 0x0102, "example.com"))

	res := h.Handle(context.Background(), "udp", "127.0.0.1", raw)

	assert.Equal(t, "formerr", res.Source)
	resp, err := dns.ParsePacket(res.ResponseBytes)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), resp.Header.ID)
	assert.Equal(t, dns.RCodeFormErr, dns.RCodeFromFlags(resp.Header.Flags))
}

func TestQueryHandler_CountsNXDOMAINResponses(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(_ context.Context, req dns.Packet, _ []byte) ([]byte, error) {
			b, err := dns.BuildErrorResponse(req, uint16(dns.RCodeNXDomain)).Marshal()
			return b, err
		}},
		Stats: stats,
	}

	res := h.Handle(context.Background(), "udp", "127.0.0.1", queryBytes(t, 1, "missing.example.com"))

	assert.Equal(t, "ok", res.Source)
	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.ResponsesNX)
	assert.Equal(t, uint64(0), snap.ResponsesErr)
}

func TestQueryHandler_CountsTCPTransport(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(_ context.Context, req dns.Packet, _ []byte) ([]byte, error) {
			return answerBytes(t, req), nil
		}},
		Stats: stats,
	}

	h.Handle(context.Background(), "tcp", "127.0.0.1", queryBytes(t, 1, "example.com"))

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.QueriesTCP)
	assert.Equal(t, uint64(0), snap.QueriesUDP)
}

func TestQueryHandler_NilStats(t *testing.T) {
	h := &QueryHandler{
		Resolver: &mockResolver{fn: func(_ context.Context, req dns.Packet, _ []byte) ([]byte, error) {
			return answerBytes(t, req), nil
		}},
	}

	assert.NotPanics(t, func() {
		h.Handle(context.Background(), "udp", "127.0.0.1", queryBytes(t, 1, "example.com"))
	})
}
