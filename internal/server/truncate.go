package server

import (
	"encoding/binary"

	"github.com/cairndns/cairndns/internal/dns"
)

// truncateUDPResponse shrinks a DNS response that exceeds maxSize down to
// header plus question section, with the TC flag set so the client retries
// over TCP (RFC 1035 Section 4.2.1). Responses that already fit pass
// through untouched.
//
// EDNS0 buffer-size negotiation is not performed; callers pass the classic
// 512-byte limit.
func truncateUDPResponse(respBytes []byte, maxSize int) []byte {
	if maxSize <= 0 {
		maxSize = dns.DefaultUDPPayloadSize
	}
	if len(respBytes) <= maxSize {
		return respBytes
	}
	if len(respBytes) < dns.HeaderSize {
		return respBytes
	}

	orig := dns.Header{
		ID:      binary.BigEndian.Uint16(respBytes[0:2]),
		Flags:   binary.BigEndian.Uint16(respBytes[2:4]),
		QDCount: binary.BigEndian.Uint16(respBytes[4:6]),
	}
	header, _ := dns.Header{
		ID:      orig.ID,
		Flags:   orig.Flags | dns.TCFlag,
		QDCount: orig.QDCount,
	}.Marshal()

	if orig.QDCount == 0 {
		return header
	}

	questionEnd := findQuestionSectionEnd(respBytes, int(orig.QDCount))
	if questionEnd <= dns.HeaderSize || questionEnd > maxSize {
		return header
	}

	out := make([]byte, 0, questionEnd)
	out = append(out, header...)
	out = append(out, respBytes[dns.HeaderSize:questionEnd]...)
	return out
}

// findQuestionSectionEnd finds the byte offset where the question section
// ends. Each question is a QNAME followed by 2-byte QTYPE and QCLASS.
func findQuestionSectionEnd(msg []byte, qdcount int) int {
	pos := dns.HeaderSize

	for range qdcount {
		pos = skipQNAME(msg, pos)
		if pos > len(msg) {
			return len(msg)
		}
		if pos+4 > len(msg) {
			return len(msg)
		}
		pos += 4
	}
	return pos
}

// skipQNAME advances past a DNS name in wire format: length-prefixed
// labels ending in a zero byte, or a 2-byte compression pointer
// (high bits 11) which terminates the name.
func skipQNAME(msg []byte, pos int) int {
	for pos < len(msg) {
		labelLen := msg[pos]

		if labelLen == 0 {
			return pos + 1
		}

		if labelLen >= 0xC0 {
			if pos+2 > len(msg) {
				return len(msg)
			}
			return pos + 2
		}

		pos++
		if pos+int(labelLen) > len(msg) {
			return len(msg)
		}
		pos += int(labelLen)
	}
	return pos
}
