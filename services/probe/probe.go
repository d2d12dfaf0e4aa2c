package probe

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/pkg/dnsclient"
	"github.com/smutt/fediscripts/pkg/fetcher"
	"github.com/smutt/fediscripts/pkg/pinger"
)

const (
	wellKnownNodeInfo  = ".well-known/nodeinfo"
	wellKnownNodeInfo2 = ".well-known/x-nodeinfo2"
)

// commonURLs are relative URLs that different implementations respond on
// with their default installs. Only the https group contains URLs common to
// multiple implementations. The bogus group tests if instances act on
// anything.
var commonURLs = []struct {
	implementation string
	rels           []string
}{
	{"bogus", []string{"no_one_would_ever_use_this_url_in_real_life"}},
	{"mastodon", []string{"actor", "terms", "about/more", "explore"}},
	{"pleroma", []string{"main/all", "main/public", "relay"}},
	{"friendica", []string{"login"}},
	{"peertube", []string{"videos/local"}},
	{"multiple", []string{"about", "@admin"}},
	{"https", []string{"robots.txt", "", "index.html", "index.htm", wellKnownNodeInfo, wellKnownNodeInfo2}},
}

// httpsRels is the ordered path list tried by TestHTTPS.
var httpsRels = commonURLs[len(commonURLs)-1].rels

// Prober holds the clients shared by all probe functions. Probes only read
// the domain under test, they never mutate shared state.
type Prober struct {
	dc     *dnsclient.Client
	fc     *fetcher.Client
	pg     *pinger.Pinger
	scheme string
}

// New returns a Prober wired to the given clients. pg may be nil when no
// ping stage will run.
func New(dc *dnsclient.Client, fc *fetcher.Client, pg *pinger.Pinger) *Prober {
	return &Prober{dc: dc, fc: fc, pg: pg, scheme: "https"}
}

func (p *Prober) urlFor(domain, rel string) string {
	return p.scheme + "://" + domain + "/" + rel
}

// TestDNS returns true if domain resolves to an A record, falling back to
// AAAA.
func (p *Prober) TestDNS(ctx context.Context, domain string) bool {
	return p.dc.Resolves(ctx, domain)
}

// TestDNSSEC returns true if DS and DNSKEY records are present for the
// domain's enclosing zone. No validation performed.
func (p *Prober) TestDNSSEC(ctx context.Context, domain string) bool {
	return p.dc.HasDNSSEC(ctx, domain)
}

// TestPing4 pings domain over ipv4, but only when an A record exists. No
// address record means no subprocess is spawned.
func (p *Prober) TestPing4(ctx context.Context, domain string) bool {
	if !p.dc.HasA(ctx, domain) {
		return false
	}
	return p.pg.Ping(ctx, domain, 4)
}

// TestPing6 pings domain over ipv6, but only when an AAAA record exists.
func (p *Prober) TestPing6(ctx context.Context, domain string) bool {
	if !p.dc.HasAAAA(ctx, domain) {
		return false
	}
	return p.pg.Ping(ctx, domain, 6)
}

// TestHTTPS returns true if any common URL can be fetched from domain.
// Client error statuses move on to the next path. If every path yields only
// client errors the host still answered something, so the probe passes.
func (p *Prober) TestHTTPS(ctx context.Context, domain string) bool {
	return p.httpsAny(ctx, domain)
}

func (p *Prober) httpsAny(ctx context.Context, domain string) bool {
	for _, rel := range httpsRels {
		url := p.urlFor(domain, rel)
		_, err := p.fc.Fetch(ctx, url)
		if err == nil {
			return true
		}
		if fetcher.IsClientError(err) {
			continue
		}
		log.Debug().Str("url", url).Err(err).Msg("https probe failed")
		return false
	}
	return true
}

// TestNodeInfo returns true if domain hosts a nodeinfo document at the well
// known path with a json content type.
func (p *Prober) TestNodeInfo(ctx context.Context, domain string) bool {
	return p.testURL(ctx, p.urlFor(domain, wellKnownNodeInfo), "json")
}

// TestNodeInfo2 returns true if domain hosts an x-nodeinfo2 document.
func (p *Prober) TestNodeInfo2(ctx context.Context, domain string) bool {
	return p.testURL(ctx, p.urlFor(domain, wellKnownNodeInfo2), "json")
}

// testURL returns true if url can be fetched and its declared content type
// contains contentType.
func (p *Prober) testURL(ctx context.Context, url, contentType string) bool {
	resp, err := p.fc.Fetch(ctx, url)
	if err != nil {
		return false
	}
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(resp.ContentType), contentType)
}
