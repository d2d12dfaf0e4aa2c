package probe

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/pkg/executor"
	"github.com/smutt/fediscripts/pkg/fetcher"
)

// CatMethods lists the categorization method names in display order.
var CatMethods = []string{"ndots", "software", "url", "local-posts", "users-total", "users-active-month", "users-active-halfyear"}

// SumMethods lists the sum method names in display order.
var SumMethods = []string{"local-posts", "users-total", "users-active-month", "users-active-halfyear"}

// sumAttrs maps sum method names to nodeinfo attribute paths.
var sumAttrs = map[string][]PathKey{
	"local-posts":           {Key("usage"), Key("localPosts")},
	"users-total":           {Key("usage"), Key("users"), Key("total")},
	"users-active-month":    {Key("usage"), Key("users"), Key("activeMonth")},
	"users-active-halfyear": {Key("usage"), Key("users"), Key("activeHalfyear")},
}

// userCats maps user count upper bounds to their display strings, in
// ascending order.
var userCats = []struct {
	max   int64
	label string
}{
	{100, "0-100"},
	{500, "101-500"},
	{1000, "501-1k"},
	{5000, "1001-5k"},
	{10000, "5001-10k"},
	{math.MaxInt64, ">10k"},
}

// Categorizers maps method names to categorization functions.
func (p *Prober) Categorizers() map[string]executor.CatFunc {
	return map[string]executor.CatFunc{
		"ndots":                 p.CatNDots,
		"software":              p.CatSoftware,
		"url":                   p.CatURL,
		"local-posts":           p.CatLocalPosts,
		"users-total":           p.userCat("users-total"),
		"users-active-month":    p.userCat("users-active-month"),
		"users-active-halfyear": p.userCat("users-active-halfyear"),
	}
}

// Sums maps method names to attribute extraction functions.
func (p *Prober) Sums() map[string]executor.AttrFunc {
	sums := make(map[string]executor.AttrFunc, len(sumAttrs))
	for method, path := range sumAttrs {
		path := path
		sums[method] = func(ctx context.Context, domain string) (int64, bool) {
			v, ok := p.NodeInfoAttr(ctx, domain, path)
			if !ok {
				return 0, false
			}
			return attrInt(v)
		}
	}
	return sums
}

// CatNDots categorizes by how many dots are in the domain.
func (p *Prober) CatNDots(ctx context.Context, domain string) string {
	return strconv.Itoa(strings.Count(domain, "."))
}

// CatSoftware categorizes by the software name shown in nodeinfo.
func (p *Prober) CatSoftware(ctx context.Context, domain string) string {
	v, ok := p.NodeInfoAttr(ctx, domain, []PathKey{Key("software"), Key("name")})
	if !ok {
		return ""
	}
	name, ok := v.(string)
	if !ok {
		return ""
	}
	return name
}

// CatLocalPosts categorizes by the number of local posts shown in nodeinfo.
func (p *Prober) CatLocalPosts(ctx context.Context, domain string) string {
	posts, ok := p.intAttr(ctx, domain, sumAttrs["local-posts"])
	if !ok {
		return ""
	}

	switch {
	case posts < 1000:
		return "0-1k"
	case posts < 10000:
		return "1k-10k"
	case posts < 100000:
		return "10k-100k"
	case posts < 1000000:
		return "100k-1m"
	}
	return ">1m"
}

// userCat builds a categorizer bucketing a nodeinfo user count.
func (p *Prober) userCat(method string) executor.CatFunc {
	path := sumAttrs[method]
	return func(ctx context.Context, domain string) string {
		users, ok := p.intAttr(ctx, domain, path)
		if !ok {
			return ""
		}
		for _, cat := range userCats {
			if users <= cat.max {
				return cat.label
			}
		}
		return ""
	}
}

// intAttr fetches a nodeinfo attribute and coerces it to a non-negative
// integer. Negative values are invalid data and report absent.
func (p *Prober) intAttr(ctx context.Context, domain string, path []PathKey) (int64, bool) {
	v, ok := p.NodeInfoAttr(ctx, domain, path)
	if !ok {
		return 0, false
	}
	n, ok := attrInt(v)
	if !ok || n < 0 {
		log.Debug().Str("domain", domain).Msg("invalid nodeinfo integer attribute")
		return 0, false
	}
	return n, true
}

// CatURL guesses the implementation by which common URLs are fetchable.
// This doesn't really work and never really will.
func (p *Prober) CatURL(ctx context.Context, domain string) string {
	for _, group := range commonURLs {
		for _, rel := range group.rels {
			url := p.urlFor(domain, rel)

			_, err := p.fc.Fetch(ctx, url)
			if err != nil {
				if fetcher.IsClientError(err) {
					continue
				}
				log.Debug().Str("url", url).Err(err).Msg("url categorization failed")
				return ""
			}

			if group.implementation == "bogus" || group.implementation == "https" {
				return ""
			}
			return group.implementation
		}
	}
	return ""
}
