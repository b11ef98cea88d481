package dns

// BuildResponse constructs a NOERROR response to req carrying the given
// record sections. The client's transaction id and question are echoed
// back; RD is preserved and RA is set. The AA flag is never set: answers
// come from a cache or an upstream, not from authoritative data.
//
// Records are taken as-is; callers serving cached entries wrap them with
// WithTTL so the wire carries the remaining TTL rather than the TTL at
// insertion time.
func BuildResponse(req Packet, answers, authorities, additionals []Record) Packet {
	h := Header{
		ID:    req.Header.ID,
		Flags: buildResponseFlags(req.Header.Flags, uint16(RCodeNoError)),
	}
	return Packet{
		Header:      h,
		Questions:   req.Questions,
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}
}
