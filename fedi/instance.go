package fedi

import (
	"fmt"
	"strings"
)

// Instance represents a single fediverse server under test, keyed by its
// domain name, along with observation metadata used for prioritization
// and consolidated file round-tripping.
type Instance struct {
	Domain    string `json:"domain"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Hits      int    `json:"hits"`
}

// NewInstance validates the supplied domain and returns an Instance with a
// single hit observed at firstSeen.
func NewInstance(domain string, firstSeen int64) (*Instance, error) {
	parsed, err := ParseDomain(domain)
	if err != nil {
		return nil, err
	}
	return &Instance{Domain: parsed, FirstSeen: firstSeen, LastSeen: firstSeen, Hits: 1}, nil
}

// RecordHit increments the hit count and widens the observation interval to
// include ts.
func (i *Instance) RecordHit(ts int64) {
	i.Hits++
	if ts < i.FirstSeen {
		i.FirstSeen = ts
	}
	if ts > i.LastSeen {
		i.LastSeen = ts
	}
}

// Combine folds another record for the same domain into this one, summing
// hits and widening the observation interval to cover both.
func (i *Instance) Combine(hits int, firstSeen, lastSeen int64) {
	i.Hits += hits
	if firstSeen < i.FirstSeen {
		i.FirstSeen = firstSeen
	}
	if lastSeen > i.LastSeen {
		i.LastSeen = lastSeen
	}
}

// Record returns the consolidated file form of this instance.
func (i *Instance) Record() string {
	return fmt.Sprintf("%s,%d,%d,%d", i.Domain, i.FirstSeen, i.LastSeen, i.Hits)
}

// ParseDomain validates a raw domain name and returns its canonical form:
// lowercased with any trailing dot removed. Each label must be 1-63
// characters of [a-z0-9-] and may not start or end with a hyphen.
func ParseDomain(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return "", ErrInvalidDomain
	}

	for _, label := range strings.Split(domain, ".") {
		if len(label) == 0 || len(label) > 63 {
			return "", ErrInvalidDomain
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return "", ErrInvalidDomain
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if c >= 'a' && c <= 'z' {
				continue
			}
			if c >= '0' && c <= '9' {
				continue
			}
			if c == '-' {
				continue
			}
			return "", ErrInvalidDomain
		}
	}
	return domain, nil
}
