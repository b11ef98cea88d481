// Package server implements the DNS protocol servers for UDP and TCP.
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
	"github.com/cairndns/cairndns/internal/resolvers"
)

// QueryHandler runs queries through the resolver and maps failures onto
// protocol error responses. Every query that carries a readable header
// gets a reply; only messages too mangled for even that are dropped.
type QueryHandler struct {
	Logger   *slog.Logger       // Optional logger for debug output
	Resolver resolvers.Resolver // Resolution engine
	Stats    *DNSStats          // Optional counters
	Timeout  time.Duration      // Maximum time for query resolution (default: 4s)
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte // Serialized DNS response, nil when nothing should be sent
	Source        string // "ok" or the error class (formerr, refused, servfail, timeout, shutdown)
}

// Handle processes a DNS request and returns a response.
//
// Error mapping:
//   - undecodable bytes          -> FORMERR (built from the raw header)
//   - decodable but unanswerable -> REFUSED (responses, exotic opcodes,
//     question counts other than one)
//   - resolver failure           -> SERVFAIL
//   - per-query timeout          -> SERVFAIL
//
// The context carries server shutdown; resolution also stops when it is
// cancelled.
func (h *QueryHandler) Handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	started := time.Now()

	parsed, err := dns.ParseRequestBounded(reqBytes)
	if err != nil {
		res := h.handleParseError(reqBytes, err)
		h.record(transport, res, started)
		h.logRequest(ctx, transport, src, dns.Packet{}, len(reqBytes), res.Source)
		return res
	}

	res := h.resolve(ctx, parsed, reqBytes)
	h.record(transport, res, started)
	h.logRequest(ctx, transport, src, parsed, len(reqBytes), res.Source)
	return res
}

// handleParseError builds an error response for a request that failed
// ParseRequestBounded. Unanswerable-but-decodable queries get REFUSED,
// everything else FORMERR. Returns nil bytes if even the header is
// unreadable.
func (h *QueryHandler) handleParseError(reqBytes []byte, parseErr error) HandleResult {
	rcode := uint16(dns.RCodeFormErr)
	source := "formerr"
	if errors.Is(parseErr, dns.ErrUnsupportedQuery) {
		rcode = uint16(dns.RCodeRefused)
		source = "refused"
	}

	resp := tryBuildErrorFromRaw(reqBytes, rcode)
	if resp == nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error"}
	}
	return HandleResult{ResponseBytes: resp, Source: source}
}

// resolve runs the resolver under the per-query timeout. Failures map to
// SERVFAIL; the source records why.
func (h *QueryHandler) resolve(ctx context.Context, parsed dns.Packet, reqBytes []byte) HandleResult {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := h.Resolver.Resolve(ctx, parsed, reqBytes)
	if err == nil {
		return HandleResult{ResponseBytes: resp, Source: "ok"}
	}

	source := "servfail"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		source = "timeout"
	case errors.Is(err, context.Canceled):
		source = "shutdown"
	}
	return HandleResult{
		ResponseBytes: mustMarshal(dns.BuildErrorResponse(parsed, uint16(dns.RCodeServFail))),
		Source:        source,
	}
}

// record updates the query counters.
func (h *QueryHandler) record(transport string, res HandleResult, started time.Time) {
	if h.Stats == nil {
		return
	}
	h.Stats.RecordQuery(transport)
	h.Stats.RecordLatency(time.Since(started).Nanoseconds())

	if res.Source != "ok" {
		h.Stats.RecordError()
		return
	}
	if len(res.ResponseBytes) >= 4 {
		flags := binary.BigEndian.Uint16(res.ResponseBytes[2:4])
		if dns.RCodeFromFlags(flags) == dns.RCodeNXDomain {
			h.Stats.RecordNXDOMAIN()
		}
	}
}

// logRequest logs DNS request details at debug level.
func (h *QueryHandler) logRequest(
	ctx context.Context,
	transport, src string,
	parsed dns.Packet,
	reqLen int,
	source string,
) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	qname := "<no-question>"
	qtype := -1
	if len(parsed.Questions) > 0 {
		qname = parsed.Questions[0].Name
		qtype = int(parsed.Questions[0].Type)
	}
	h.Logger.Debug(
		"dns request",
		"transport", transport,
		"src", src,
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// mustMarshal serializes a DNS packet, returning nil on error.
func mustMarshal(p dns.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

// tryBuildErrorFromRaw constructs an error response straight from raw
// request bytes. Used when parsing fails but the transaction ID (and
// ideally the question) can still be recovered, so the client gets a
// matchable reply instead of silence.
//
// Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode uint16) []byte {
	off := 0
	h, err := dns.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	if h.QDCount == 0 {
		p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}}
		b, _ := dns.BuildErrorResponse(p, rcode).Marshal()
		return b
	}

	// Recover the first question if it survives parsing.
	q, err := dns.ParseQuestion(reqBytes, &off)
	if err != nil {
		p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}}
		b, _ := dns.BuildErrorResponse(p, rcode).Marshal()
		return b
	}
	p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}, Questions: []dns.Question{q}}
	b, _ := dns.BuildErrorResponse(p, rcode).Marshal()
	return b
}
