// Command cachedump prints the contents of a persisted cache snapshot.
// It reads the SQLite file a running server checkpoints to, so it works
// offline; point it at a copy if the server is live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cairndns/cairndns/internal/dns"
	"github.com/cairndns/cairndns/internal/persist"
)

func main() {
	all := flag.Bool("all", false, "Include entries that have already expired")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: cachedump [-all] path/to/cache.db\n")
		os.Exit(2)
	}

	adapter, err := persist.NewSQLite(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open snapshot: %v\n", err)
		os.Exit(1)
	}
	defer adapter.Close()

	now := time.Now()
	loadFrom := now
	if *all {
		// Loading "from" the distant past keeps expired rows in the result.
		loadFrom = time.Time{}
	}
	entries, err := adapter.Load(context.Background(), loadFrom)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read snapshot: %v\n", err)
		os.Exit(1)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Key, entries[j].Key
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Class < b.Class
	})

	fmt.Printf("ENTRIES: %d\n", len(entries))
	for _, e := range entries {
		remaining := e.RemainingTTL(now).Round(time.Second)
		state := fmt.Sprintf("expires_in=%s", remaining)
		if e.Expired(now) {
			state = "expired"
		}
		fmt.Printf("  %s %s class=%d records=%d/%d/%d stored=%s %s\n",
			e.Key.Name,
			typeName(e.Key.Type),
			e.Key.Class,
			len(e.Answers), len(e.Authority), len(e.Additional),
			e.StoredAt.Format(time.RFC3339),
			state,
		)
	}
}

func typeName(code uint16) string {
	switch dns.RecordType(code) {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	case dns.TypeCNAME:
		return "CNAME"
	case dns.TypeNS:
		return "NS"
	case dns.TypeMX:
		return "MX"
	case dns.TypeTXT:
		return "TXT"
	case dns.TypePTR:
		return "PTR"
	case dns.TypeSOA:
		return "SOA"
	default:
		return fmt.Sprintf("TYPE%d", code)
	}
}
