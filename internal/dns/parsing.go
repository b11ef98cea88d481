package dns

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cairndns/cairndns/internal/helpers"
)

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 4    // Maximum questions per query (RFC allows 1 typically)
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// DefaultUDPPayloadSize is the classic RFC 1035 ceiling for UDP responses.
// Longer answers are truncated with the TC bit so the client retries over TCP.
const DefaultUDPPayloadSize = 512

// ErrUnsupportedQuery marks messages that decoded fine but cannot be served:
// response packets, non-QUERY opcodes, or a question count other than one.
// Handlers answer these with REFUSED rather than FORMERR.
var ErrUnsupportedQuery = errors.New("unsupported dns query")

// ParseRequestBounded parses a DNS request with security bounds checking.
// It validates that the message is a standard query (not a response),
// uses opcode 0 (QUERY), and carries exactly one question.
//
// Returns an ErrDNSError-wrapped error when the bytes do not decode, and an
// ErrUnsupportedQuery-wrapped error when they decode into something this
// server refuses to answer.
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, fmt.Errorf("%w: message too large (%d bytes)", ErrDNSError, len(msg))
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}

	// Validate QR flag: must be 0 for queries
	if p.Header.IsResponse() {
		return Packet{}, fmt.Errorf("%w: QR flag set (response packet received)", ErrUnsupportedQuery)
	}

	// Extract and validate opcode (bits 14-11)
	if opcode := extractOpcode(p.Header.Flags); opcode != 0 {
		return Packet{}, fmt.Errorf("%w: opcode %d", ErrUnsupportedQuery, opcode)
	}

	// Validate section counts
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}

	return p, nil
}

// extractOpcode extracts the 4-bit opcode from the flags field.
// Opcode occupies bits 14-11, so we mask with 0x7800 and shift right by 11.
func extractOpcode(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}

// validateSectionCounts checks that section counts don't exceed limits.
// Caching keys on exactly one (name, type, class) triple, so zero or
// multiple questions are refused.
func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd != 1 {
		return fmt.Errorf("%w: question count %d", ErrUnsupportedQuery, qd)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("%w: too many resource records", ErrDNSError)
	}
	if (an + ns + ar) > MaxTotalRR {
		return fmt.Errorf("%w: too many total resource records", ErrDNSError)
	}
	return nil
}

// IsTruncated reports whether a raw DNS message has the TC bit set.
// It reads the flags field directly so callers can decide on a TCP retry
// without parsing the whole message.
func IsTruncated(msg []byte) bool {
	if len(msg) < 4 {
		return false
	}
	return binary.BigEndian.Uint16(msg[2:4])&TCFlag != 0
}

// PatchTransactionID returns msg with its transaction id replaced.
// The input slice is never modified; when the id already matches, msg is
// returned unchanged without allocating.
//
// Replies forwarded verbatim from upstream travel with transaction id 0
// while shared between waiters; each client's own id is patched in at the
// last moment.
func PatchTransactionID(msg []byte, txid uint16) []byte {
	if len(msg) < 2 {
		return msg
	}
	if msg[0] == byte(txid>>8) && msg[1] == byte(txid) {
		return msg
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	out[0] = byte(txid >> 8)
	out[1] = byte(txid)
	return out
}

// BuildErrorResponse constructs a DNS error response packet.
// It preserves the transaction ID and RD flag from the request,
// sets the QR flag (response), and applies the given response code.
//
// The response includes the original question section but no answer records.
func BuildErrorResponse(req Packet, rcode uint16) Packet {
	flags := buildResponseFlags(req.Header.Flags, rcode)

	h := Header{
		ID:      req.Header.ID,
		Flags:   flags,
		QDCount: helpers.ClampIntToUint16(len(req.Questions)),
		ANCount: 0,
		NSCount: 0,
		ARCount: 0,
	}
	return Packet{Header: h, Questions: req.Questions}
}

// buildResponseFlags constructs the flags field for a response.
//
// Flag construction:
//  1. Set QR flag (bit 15) to mark as response
//  2. Set RA: a forwarding cache always offers recursion
//  3. Preserve RD flag (bit 8) from request if set
//  4. Clear existing RCODE and set new rcode in bits 3-0
func buildResponseFlags(reqFlags uint16, rcode uint16) uint16 {
	flags := QRFlag | RAFlag

	// Preserve RD (Recursion Desired) from the request
	flags |= (reqFlags & RDFlag)

	// Clear RCODE bits and set new response code (low 4 bits)
	rcode &= RCodeMask
	flags = (flags &^ RCodeMask) | rcode

	return flags
}
