package persist

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/dns"
)

// marshalRecords concatenates records in wire format (name, type, class,
// TTL, RDLENGTH, RDATA per record). The count travels separately so the
// reader knows when to stop.
func marshalRecords(records []dns.Record) ([]byte, error) {
	var out []byte
	for _, r := range records {
		b, err := dns.MarshalRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal record for %q: %v", ErrPersistence, r.Header().Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// unmarshalRecords parses count wire-format records out of b. Leftover or
// missing bytes mean the blob does not match its recorded count.
func unmarshalRecords(b []byte, count int) ([]dns.Record, error) {
	if count < 0 || count > dns.MaxRRPerSection {
		return nil, fmt.Errorf("%w: record count %d out of range", ErrCorruptData, count)
	}
	records := make([]dns.Record, 0, count)
	off := 0
	for range count {
		r, err := dns.ParseRecord(b, &off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		records = append(records, r)
	}
	if off != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d records", ErrCorruptData, len(b)-off, count)
	}
	return records, nil
}

// packEntry serializes an entry and its save-time TTL bookkeeping into a
// single self-contained value (the Redis backend stores one of these per
// key; SQLite splits the same fields across columns).
//
// Layout, big-endian:
//
//	8B saved_at (unix nanoseconds)
//	8B original_ttl (nanoseconds)
//	8B remaining_ttl at save (nanoseconds)
//	2B qtype, 2B qclass
//	2B name length, name bytes
//	2B answer count, 2B authority count, 2B additional count
//	3 x (4B blob length, blob) in section order
func packEntry(e cache.Entry, now time.Time) ([]byte, error) {
	answers, err := marshalRecords(e.Answers)
	if err != nil {
		return nil, err
	}
	authority, err := marshalRecords(e.Authority)
	if err != nil {
		return nil, err
	}
	additional, err := marshalRecords(e.Additional)
	if err != nil {
		return nil, err
	}

	name := []byte(e.Key.Name)
	if len(name) > 255 {
		return nil, fmt.Errorf("%w: name %q too long", ErrPersistence, e.Key.Name)
	}

	size := 8 + 8 + 8 + 2 + 2 + 2 + len(name) + 6 + 12 + len(answers) + len(authority) + len(additional)
	out := make([]byte, 0, size)

	out = binary.BigEndian.AppendUint64(out, uint64(now.UnixNano()))
	out = binary.BigEndian.AppendUint64(out, uint64(e.OriginalTTL))
	out = binary.BigEndian.AppendUint64(out, uint64(e.RemainingTTL(now)))
	out = binary.BigEndian.AppendUint16(out, e.Key.Type)
	out = binary.BigEndian.AppendUint16(out, e.Key.Class)
	out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.Answers)))
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.Authority)))
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.Additional)))
	for _, blob := range [][]byte{answers, authority, additional} {
		out = binary.BigEndian.AppendUint32(out, uint32(len(blob)))
		out = append(out, blob...)
	}
	return out, nil
}

// unpackEntry reverses packEntry, reconstructing absolute StoredAt and
// ExpiresAt times. Callers must still drop entries already expired at
// load time.
func unpackEntry(b []byte) (cache.Entry, error) {
	var e cache.Entry

	const fixed = 8 + 8 + 8 + 2 + 2 + 2
	if len(b) < fixed {
		return e, fmt.Errorf("%w: value too short (%d bytes)", ErrCorruptData, len(b))
	}

	savedAt := time.Unix(0, int64(binary.BigEndian.Uint64(b[0:8])))
	originalTTL := time.Duration(binary.BigEndian.Uint64(b[8:16]))
	remaining := time.Duration(binary.BigEndian.Uint64(b[16:24]))
	qtype := binary.BigEndian.Uint16(b[24:26])
	qclass := binary.BigEndian.Uint16(b[26:28])
	nameLen := int(binary.BigEndian.Uint16(b[28:30]))

	off := fixed
	if off+nameLen+6 > len(b) {
		return e, fmt.Errorf("%w: truncated name", ErrCorruptData)
	}
	name := string(b[off : off+nameLen])
	off += nameLen

	counts := [3]int{}
	for i := range counts {
		counts[i] = int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
	}

	sections := [3][]dns.Record{}
	for i := range sections {
		if off+4 > len(b) {
			return e, fmt.Errorf("%w: truncated section length", ErrCorruptData)
		}
		blobLen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if off+blobLen > len(b) {
			return e, fmt.Errorf("%w: truncated section blob", ErrCorruptData)
		}
		records, err := unmarshalRecords(b[off:off+blobLen], counts[i])
		if err != nil {
			return e, err
		}
		sections[i] = records
		off += blobLen
	}
	if off != len(b) {
		return e, fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, len(b)-off)
	}

	// The entry's absolute expiry is saved_at + remaining-at-save; anchor
	// StoredAt so OriginalTTL still spans the whole lifetime.
	expiresAt := savedAt.Add(remaining)
	e = cache.Entry{
		Key:         cache.NewKey(name, qtype, qclass),
		Answers:     sections[0],
		Authority:   sections[1],
		Additional:  sections[2],
		StoredAt:    expiresAt.Add(-originalTTL),
		OriginalTTL: originalTTL,
		ExpiresAt:   expiresAt,
	}
	return e, nil
}
