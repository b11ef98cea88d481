package server

import (
	"encoding/binary"
	"testing"

	"github.com/cairndns/cairndns/internal/dns"
)

// oversizedResponse builds a response comfortably past the classic UDP
// limit: one question plus a fat TXT record.
func oversizedResponse(t *testing.T) []byte {
	t.Helper()

	payload := make([]byte, 600)
	rec := dns.NewOpaqueRecord(dns.NewRRHeader("example.com", dns.ClassIN, 60), dns.TypeTXT, payload)

	resp := dns.Packet{
		Header:    dns.Header{ID: 0x1234, Flags: dns.QRFlag | dns.RDFlag | dns.RAFlag},
		Questions: []dns.Question{{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
		Answers:   []dns.Record{rec},
	}
	b, err := resp.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) <= dns.DefaultUDPPayloadSize {
		t.Fatalf("test response too small: %d bytes", len(b))
	}
	return b
}

func TestTruncateUDPResponse_SetsTCAndClearsCounts(t *testing.T) {
	b := oversizedResponse(t)

	out := truncateUDPResponse(b, dns.DefaultUDPPayloadSize)

	if len(out) > dns.DefaultUDPPayloadSize {
		t.Fatalf("still oversized: %d bytes", len(out))
	}

	off := 0
	h, err := dns.ParseHeader(out, &off)
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if h.ID != 0x1234 {
		t.Fatalf("ID changed: %#x", h.ID)
	}
	if h.Flags&dns.TCFlag == 0 {
		t.Fatal("TC flag not set")
	}
	if h.Flags&dns.QRFlag == 0 {
		t.Fatal("QR flag lost")
	}
	if h.QDCount != 1 {
		t.Fatalf("QDCount = %d, want 1", h.QDCount)
	}
	if h.ANCount != 0 || h.NSCount != 0 || h.ARCount != 0 {
		t.Fatalf("record counts not cleared: an=%d ns=%d ar=%d", h.ANCount, h.NSCount, h.ARCount)
	}

	// The question must survive intact.
	q, err := dns.ParseQuestion(out, &off)
	if err != nil {
		t.Fatalf("parse question: %v", err)
	}
	if q.Name != "example.com" {
		t.Fatalf("question name = %q", q.Name)
	}
	if off != len(out) {
		t.Fatalf("trailing bytes after question: %d of %d", off, len(out))
	}
}

func TestTruncateUDPResponse_SmallResponseUntouched(t *testing.T) {
	resp := dns.Packet{
		Header:    dns.Header{ID: 7, Flags: dns.QRFlag},
		Questions: []dns.Question{{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
	}
	b, err := resp.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := truncateUDPResponse(b, dns.DefaultUDPPayloadSize)

	if &out[0] != &b[0] || len(out) != len(b) {
		t.Fatal("small response should pass through unmodified")
	}
}

func TestTruncateUDPResponse_HeaderOnlyWhenQuestionMissing(t *testing.T) {
	// QDCOUNT=0 response (e.g. a bare error) larger than the limit.
	b := make([]byte, 700)
	binary.BigEndian.PutUint16(b[0:2], 0xBEEF)
	binary.BigEndian.PutUint16(b[2:4], dns.QRFlag)
	// QDCOUNT stays zero

	out := truncateUDPResponse(b, dns.DefaultUDPPayloadSize)

	if len(out) != dns.HeaderSize {
		t.Fatalf("want bare header, got %d bytes", len(out))
	}
	if binary.BigEndian.Uint16(out[0:2]) != 0xBEEF {
		t.Fatal("ID not preserved")
	}
	if binary.BigEndian.Uint16(out[2:4])&dns.TCFlag == 0 {
		t.Fatal("TC flag not set")
	}
}

func TestTruncateUDPResponse_HeaderOnlyWhenQuestionOverflows(t *testing.T) {
	// Claim one question but fill the body with label garbage so the
	// question section never terminates before maxSize.
	b := make([]byte, 700)
	binary.BigEndian.PutUint16(b[0:2], 1)
	binary.BigEndian.PutUint16(b[2:4], dns.QRFlag)
	binary.BigEndian.PutUint16(b[4:6], 1) // QDCOUNT
	for i := dns.HeaderSize; i < len(b); i++ {
		b[i] = 63 // max label length, never a terminator
	}

	out := truncateUDPResponse(b, dns.DefaultUDPPayloadSize)

	if len(out) != dns.HeaderSize {
		t.Fatalf("want bare header, got %d bytes", len(out))
	}
}

func TestSkipQNAME_CompressionPointer(t *testing.T) {
	msg := make([]byte, 20)
	msg[10] = 0xC0
	msg[11] = 0x0C

	if got := skipQNAME(msg, 10); got != 12 {
		t.Fatalf("pointer skip = %d, want 12", got)
	}
}

func TestSkipQNAME_PlainLabels(t *testing.T) {
	// 3www7example3com0
	msg := []byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}

	if got := skipQNAME(msg, 0); got != len(msg) {
		t.Fatalf("label skip = %d, want %d", got, len(msg))
	}
}
