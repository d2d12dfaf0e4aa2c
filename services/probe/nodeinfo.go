package probe

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog/log"
)

// PathKey addresses one step of a nodeinfo attribute path: a string key
// descends into an object, an index descends into an array.
type PathKey struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a PathKey for object traversal.
func Key(s string) PathKey {
	return PathKey{key: s}
}

// Index returns a PathKey for array traversal.
func Index(i int) PathKey {
	return PathKey{index: i, isIndex: true}
}

func (k PathKey) String() string {
	if k.isIndex {
		return strconv.Itoa(k.index)
	}
	return k.key
}

// nodeInfoLinks is the well known discovery document pointing at the real
// nodeinfo schema documents.
type nodeInfoLinks struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// NodeInfoAttr fetches domain's nodeinfo document and walks path to a leaf
// value. Any fetch failure, parse error, missing key or wrong type reports
// absent.
func (p *Prober) NodeInfoAttr(ctx context.Context, domain string, path []PathKey) (interface{}, bool) {
	return p.nodeInfoAttr(ctx, p.urlFor(domain, wellKnownNodeInfo), path)
}

func (p *Prober) nodeInfoAttr(ctx context.Context, url string, path []PathKey) (interface{}, bool) {
	resp, err := p.fc.Fetch(ctx, url)
	if err != nil {
		log.Debug().Str("url", url).Err(err).Msg("unable to fetch nodeinfo schemas")
		return nil, false
	}

	var links nodeInfoLinks
	if err := json.Unmarshal(resp.Body, &links); err != nil {
		log.Debug().Str("url", url).Err(err).Msg("unable to decode nodeinfo schemas")
		return nil, false
	}
	if len(links.Links) == 0 {
		return nil, false
	}

	// nodeinfo standard says to always take the last one
	href := links.Links[len(links.Links)-1].Href
	if href == "" {
		return nil, false
	}

	doc, err := p.fc.Fetch(ctx, href)
	if err != nil {
		log.Debug().Str("url", href).Err(err).Msg("unable to fetch nodeinfo document")
		return nil, false
	}

	var root interface{}
	if err := json.Unmarshal(doc.Body, &root); err != nil {
		log.Debug().Str("url", href).Err(err).Msg("unable to decode nodeinfo document")
		return nil, false
	}
	return walkPath(root, path)
}

// walkPath descends root following path and returns the leaf value.
func walkPath(root interface{}, path []PathKey) (interface{}, bool) {
	current := root
	for _, k := range path {
		if k.isIndex {
			arr, ok := current.([]interface{})
			if !ok || k.index < 0 || k.index >= len(arr) {
				return nil, false
			}
			current = arr[k.index]
			continue
		}

		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[k.key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// attrInt coerces a nodeinfo attribute value to an integer. Numbers decode
// as float64, some implementations publish counts as strings.
func attrInt(v interface{}) (int64, bool) {
	switch value := v.(type) {
	case float64:
		return int64(value), true
	case string:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
