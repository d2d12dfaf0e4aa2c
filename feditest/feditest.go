package feditest

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/smutt/fediscripts/fedi"
)

// BuildInstances creates test instances for the given domains.
func BuildInstances(t *testing.T, domains ...string) []*fedi.Instance {
	instances := make([]*fedi.Instance, 0, len(domains))
	for _, domain := range domains {
		ins, err := fedi.NewInstance(domain, 100)
		if err != nil {
			t.Fatalf("error building instance %s: %s\n", domain, err)
		}
		instances = append(instances, ins)
	}
	return instances
}

// BuildRegistry creates a test registry keyed by domain.
func BuildRegistry(t *testing.T, domains ...string) map[string]*fedi.Instance {
	instances := make(map[string]*fedi.Instance, len(domains))
	for _, ins := range BuildInstances(t, domains...) {
		instances[ins.Domain] = ins
	}
	return instances
}

// NodeInfoHandler serves a minimal nodeinfo endpoint: the well known
// document links to /nodeinfo/2.0, which returns doc verbatim as json.
// Extra links preceding the final one exercise the take-the-last-link rule.
func NodeInfoHandler(t *testing.T, doc string, extraLinks ...string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/nodeinfo", func(w http.ResponseWriter, r *http.Request) {
		links := make([]map[string]string, 0, len(extraLinks)+1)
		for _, href := range extraLinks {
			links = append(links, map[string]string{"rel": "http://nodeinfo.diaspora.software/ns/schema/1.0", "href": href})
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		links = append(links, map[string]string{
			"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
			"href": scheme + "://" + r.Host + "/nodeinfo/2.0",
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"links": links}); err != nil {
			t.Errorf("error encoding links: %s\n", err)
		}
	})

	mux.HandleFunc("/nodeinfo/2.0", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(doc))
	})

	return mux
}
