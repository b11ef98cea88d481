// Command dnsquery sends a single DNS query over UDP and prints the
// answers. Handy for poking at a running resolver without dig.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
)

func main() {
	var (
		server   = flag.String("server", "127.0.0.1:53", "DNS server HOST:PORT")
		name     = flag.String("name", "example.com", "Query name")
		qtype    = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		timeout  = flag.Duration("timeout", 2*time.Second, "Timeout")
		recvSize = flag.Int("recv-size", 2048, "UDP receive buffer size")
		quiet    = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	resp, err := queryUDP(*server, *name, uint16(*qtype), *timeout, *recvSize)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := dns.ParsePacket(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	fmt.Printf("id=%d rcode=%d truncated=%v answers=%d authorities=%d additionals=%d\n",
		p.Header.ID,
		dns.RCodeFromFlags(p.Header.Flags),
		dns.IsTruncated(resp),
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

func queryUDP(server, name string, qtype uint16, timeout time.Duration, recvSize int) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	reqBytes, err := buildQuery(name, qtype)
	if err != nil {
		return nil, err
	}
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(reqBytes); err != nil {
		return nil, err
	}
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	id := uint16(time.Now().UnixNano())
	if id == 0 {
		id = 0x1234
	}
	p := dns.Packet{
		Header: dns.Header{ID: id, Flags: dns.RDFlag},
		Questions: []dns.Question{
			{Name: strings.TrimSuffix(name, "."), Type: qtype, Class: uint16(dns.ClassIN)},
		},
	}
	return p.Marshal()
}

func formatRR(rr dns.Record) string {
	h := rr.Header()
	name := h.Name
	if name == "" {
		name = "."
	}
	switch r := rr.(type) {
	case *dns.IPRecord:
		kind := "A"
		if r.Type() == dns.TypeAAAA {
			kind = "AAAA"
		}
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, kind, r.Addr.String())
	case *dns.NameRecord:
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, typeName(r.Type()), r.Target)
	case *dns.MXRecord:
		return fmt.Sprintf("%s %d IN MX %d %s", name, h.TTL, r.Preference, r.Exchange)
	case *dns.SOARecord:
		return fmt.Sprintf("%s %d IN SOA %s %s %d", name, h.TTL, r.MName, r.RName, r.Serial)
	default:
		return fmt.Sprintf("%s %d IN TYPE%d (unparsed)", name, h.TTL, rr.Type())
	}
}

func typeName(rt dns.RecordType) string {
	switch rt {
	case dns.TypeCNAME:
		return "CNAME"
	case dns.TypeNS:
		return "NS"
	case dns.TypePTR:
		return "PTR"
	default:
		return fmt.Sprintf("TYPE%d", rt)
	}
}
