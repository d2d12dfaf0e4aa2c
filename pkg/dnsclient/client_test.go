package dnsclient

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
)

// canned zone data served by the test resolver
var testRecords = map[string]map[uint16][]string{
	"resolves.example.com.": {
		dns.TypeA: {"resolves.example.com. 300 IN A 192.0.2.10"},
	},
	"dual.example.com.": {
		dns.TypeA:    {"dual.example.com. 300 IN A 192.0.2.11"},
		dns.TypeAAAA: {"dual.example.com. 300 IN AAAA 2001:db8::11"},
	},
	"v6only.example.com.": {
		dns.TypeAAAA: {"v6only.example.com. 300 IN AAAA 2001:db8::12"},
	},
	"alias.example.com.": {
		dns.TypeCNAME: {"alias.example.com. 300 IN CNAME step.example.com."},
	},
	"step.example.com.": {
		dns.TypeCNAME: {"step.example.com. 300 IN CNAME canonical.example.com."},
	},
	"signed.example.com.": {
		dns.TypeA: {"signed.example.com. 300 IN A 192.0.2.13"},
	},
	"example.com.": {
		dns.TypeDS:     {"example.com. 300 IN DS 370 13 2 BE74359954660069D5C63D200C39F5603827D7DD02B56F120EE9F3A86764247C"},
		dns.TypeDNSKEY: {"example.com. 300 IN DNSKEY 257 3 13 mdsswUyr3DPW132mOi8V9xESWE8jTo0dxCjjnopKl1GqJxpVXckHAeFlKkxLbxIL"},
	},
	"unsigned.example.net.": {
		dns.TypeA: {"unsigned.example.net. 300 IN A 192.0.2.14"},
	},
}

func startTestResolver(t *testing.T) (string, func()) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error listening: %s\n", err)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		q := r.Question[0]

		byType, ok := testRecords[q.Name]
		if !ok {
			m.SetRcode(r, dns.RcodeNameError)
			w.WriteMsg(m)
			return
		}

		m.SetReply(r)
		for _, record := range byType[q.Qtype] {
			rr, err := dns.NewRR(record)
			if err != nil {
				t.Errorf("bad test record %q: %s\n", record, err)
				continue
			}
			m.Answer = append(m.Answer, rr)
		}
		w.WriteMsg(m)
	})

	server := &dns.Server{PacketConn: pc, Handler: mux}
	go server.ActivateAndServe()

	return pc.LocalAddr().String(), func() { server.Shutdown() }
}

func TestHasRecords(t *testing.T) {
	addr, stop := startTestResolver(t)
	defer stop()

	tests := []struct {
		in       string
		hasA     bool
		hasAAAA  bool
		resolves bool
	}{
		{"resolves.example.com", true, false, true},
		{"dual.example.com", true, true, true},
		{"v6only.example.com", false, true, true},
		{"nxdomain.example.com", false, false, false},
	}

	c := New([]string{addr}, 3)
	ctx := context.Background()
	for _, test := range tests {
		if got := c.HasA(ctx, test.in); got != test.hasA {
			t.Fatalf("%s HasA expected %v got %v\n", test.in, test.hasA, got)
		}
		if got := c.HasAAAA(ctx, test.in); got != test.hasAAAA {
			t.Fatalf("%s HasAAAA expected %v got %v\n", test.in, test.hasAAAA, got)
		}
		if got := c.Resolves(ctx, test.in); got != test.resolves {
			t.Fatalf("%s Resolves expected %v got %v\n", test.in, test.resolves, got)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	addr, stop := startTestResolver(t)
	defer stop()

	c := New([]string{addr}, 3)
	ctx := context.Background()

	if got := c.CanonicalName(ctx, "alias.example.com"); got != "canonical.example.com" {
		t.Fatalf("expected canonical.example.com got %s\n", got)
	}

	// a name with no CNAME is its own canonical name
	if got := c.CanonicalName(ctx, "resolves.example.com"); got != "resolves.example.com" {
		t.Fatalf("expected resolves.example.com got %s\n", got)
	}
}

func TestZoneApex(t *testing.T) {
	tests := []struct {
		in      string
		out     string
		isError bool
	}{
		{"www.example.com", "example.com", false},
		{"a.b.example.com", "example.com", false},
		{"example.com", "example.com", false},
		{"www.example.co.uk", "example.co.uk", false},
		{"signed.example.com.", "example.com", false},
		{"com", "", true},
	}

	for _, test := range tests {
		out, err := ZoneApex(test.in)
		if err != nil {
			if !test.isError {
				t.Fatalf("%s error: %s\n", test.in, err)
			}
			continue
		}
		if test.isError {
			t.Fatalf("%s expected error, did not get one\n", test.in)
		}
		if out != test.out {
			t.Fatalf("%s expected %s got %s\n", test.in, test.out, out)
		}
	}
}

func TestHasDNSSEC(t *testing.T) {
	addr, stop := startTestResolver(t)
	defer stop()

	c := New([]string{addr}, 3)
	ctx := context.Background()

	if !c.HasDNSSEC(ctx, "signed.example.com") {
		t.Fatalf("expected signed.example.com to have dnssec\n")
	}
	if c.HasDNSSEC(ctx, "unsigned.example.net") {
		t.Fatalf("expected unsigned.example.net to not have dnssec\n")
	}
	if c.HasDNSSEC(ctx, "nxdomain.example.net") {
		t.Fatalf("expected nxdomain.example.net to not have dnssec\n")
	}
}
