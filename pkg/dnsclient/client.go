package dnsclient

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

var (
	// ErrNoResponse Returned when there was no response
	ErrNoResponse = errors.New("error getting valid response")
	// ErrEmptyRecords returned when there were no records returned
	ErrEmptyRecords = errors.New("error empty record returned")
	// ErrRcode when Rcode != dns.RcodeSuccess
	ErrRcode = errors.New("bad Rcode returned by server")
	// ErrNoServers when the client was built without any resolvers
	ErrNoServers = errors.New("no dns servers configured")
)

// maxCNAMEChain bounds how many CNAMEs we follow when canonicalizing
const maxCNAMEChain = 10

// Client issues queries against the configured resolvers for instance
// probing: address records, CNAME canonicalization and DNSSEC presence.
type Client struct {
	client  *dns.Client
	servers []string
	retry   int
}

// New returns a new DNS client
func New(servers []string, retry int) *Client {
	c := &Client{}
	c.servers = servers
	c.retry = retry
	c.client = &dns.Client{Timeout: 5 * time.Second}
	return c
}

// SystemServers reads the system resolver configuration and returns the
// configured server addresses in host:port form.
func SystemServers() ([]string, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	if len(conf.Servers) == 0 {
		return nil, ErrNoServers
	}
	servers := make([]string, len(conf.Servers))
	for i, s := range conf.Servers {
		servers[i] = s + ":" + conf.Port
	}
	return servers, nil
}

// HasA returns true iff name has at least one A record. Server errors,
// timeouts and empty answers all report false, never an error.
func (c *Client) HasA(ctx context.Context, name string) bool {
	return c.hasRecord(ctx, name, dns.TypeA)
}

// HasAAAA returns true iff name has at least one AAAA record.
func (c *Client) HasAAAA(ctx context.Context, name string) bool {
	return c.hasRecord(ctx, name, dns.TypeAAAA)
}

// Resolves returns true if name resolves to an A record, falling back to
// AAAA when it does not.
func (c *Client) Resolves(ctx context.Context, name string) bool {
	if c.HasA(ctx, name) {
		return true
	}
	return c.HasAAAA(ctx, name)
}

// CanonicalName follows the CNAME chain for name and returns the canonical
// name. A name with no CNAME record is its own canonical name.
func (c *Client) CanonicalName(ctx context.Context, name string) string {
	current := name
	for i := 0; i < maxCNAMEChain; i++ {
		result, err := c.exchange(ctx, current, dns.TypeCNAME)
		if err != nil {
			return current
		}
		target := ""
		for _, answer := range result.Answer {
			if cname, ok := answer.(*dns.CNAME); ok {
				target = fqdnTrim(cname.Target)
				break
			}
		}
		if target == "" || target == current {
			return current
		}
		current = target
	}
	return current
}

// ZoneApex returns the enclosing registered zone for name.
func ZoneApex(name string) (string, error) {
	return publicsuffix.EffectiveTLDPlusOne(strings.ToLower(fqdnTrim(name)))
}

// HasDNSSEC canonicalizes name, finds its enclosing zone and returns true
// only if both a DS and a DNSKEY record exist at the zone apex. Any
// resolution failure reports false.
func (c *Client) HasDNSSEC(ctx context.Context, name string) bool {
	cname := c.CanonicalName(ctx, name)

	zone, err := ZoneApex(cname)
	if err != nil {
		log.Debug().Str("name", cname).Err(err).Msg("unable to determine zone apex")
		return false
	}

	if !c.hasRecord(ctx, zone, dns.TypeDS) {
		return false
	}
	return c.hasRecord(ctx, zone, dns.TypeDNSKEY)
}

// hasRecord returns true iff the answer section contains at least one
// record of the requested type.
func (c *Client) hasRecord(ctx context.Context, name string, query uint16) bool {
	result, err := c.exchange(ctx, name, query)
	if err != nil {
		return false
	}
	for _, answer := range result.Answer {
		if answer.Header().Rrtype == query {
			return true
		}
	}
	return false
}

// Initiates an exchange with a dns resolver
func (c *Client) exchange(ctx context.Context, name string, query uint16) (*dns.Msg, error) {
	var result *dns.Msg
	var err error

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), query)
	msg.SetEdns0(4096, true)

	// randomize dns resolver for requests
	server := c.servers[rand.Intn(len(c.servers))]
	for i := 0; i < c.retry; i++ {
		result, _, err = c.client.ExchangeContext(ctx, msg, server)
		if err == nil {
			break
		}
	}

	if err != nil {
		return nil, err
	}

	if result.Rcode != dns.RcodeSuccess {
		return nil, ErrRcode
	}

	if len(result.Answer) < 1 {
		return nil, ErrEmptyRecords
	}
	return result, nil
}

func fqdnTrim(name string) string {
	if dns.IsFqdn(name) {
		return strings.TrimRight(name, ".")
	}
	return name
}
