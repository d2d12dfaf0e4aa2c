package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smutt/fediscripts/feditest"
	"github.com/smutt/fediscripts/pkg/fetcher"
)

func testProber(attempts uint) *Prober {
	p := New(nil, fetcher.NewWithAttempts(attempts), nil)
	p.scheme = "http"
	return p
}

func hostOf(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestHTTPSFirstPathSuccess(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := testProber(1)
	if !p.TestHTTPS(context.Background(), hostOf(ts)) {
		t.Fatalf("expected https probe to pass\n")
	}
	// success short-circuits, robots.txt is the first path tried
	if len(paths) != 1 || paths[0] != "/robots.txt" {
		t.Fatalf("expected a single request to /robots.txt got %v\n", paths)
	}
}

func TestHTTPSAllClientErrors(t *testing.T) {
	// a host that answers but matches nothing still passes
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	p := testProber(1)
	if !p.TestHTTPS(context.Background(), hostOf(ts)) {
		t.Fatalf("expected https probe to pass on client errors\n")
	}
}

func TestHTTPSServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := testProber(1)
	if p.TestHTTPS(context.Background(), hostOf(ts)) {
		t.Fatalf("expected https probe to fail on server error\n")
	}
}

func TestHTTPSUnreachable(t *testing.T) {
	p := testProber(1)
	if p.TestHTTPS(context.Background(), "127.0.0.1:1") {
		t.Fatalf("expected https probe to fail on dead host\n")
	}
}

func TestNodeInfoContentType(t *testing.T) {
	ts := httptest.NewServer(feditest.NodeInfoHandler(t, `{"software":{"name":"mastodon"}}`))
	defer ts.Close()

	p := testProber(1)
	if !p.TestNodeInfo(context.Background(), hostOf(ts)) {
		t.Fatalf("expected node-info probe to pass\n")
	}
	// x-nodeinfo2 is not served by this handler
	if p.TestNodeInfo2(context.Background(), hostOf(ts)) {
		t.Fatalf("expected node-info2 probe to fail\n")
	}
}

func TestNodeInfoWrongContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	p := testProber(1)
	if p.TestNodeInfo(context.Background(), hostOf(ts)) {
		t.Fatalf("expected node-info probe to fail on html content type\n")
	}
}

func TestCatNDots(t *testing.T) {
	p := testProber(1)
	tests := []struct {
		in  string
		out string
	}{
		{"example.com", "1"},
		{"social.example.com", "2"},
		{"localhost", "0"},
	}
	for _, test := range tests {
		if got := p.CatNDots(context.Background(), test.in); got != test.out {
			t.Fatalf("%s expected %s got %s\n", test.in, test.out, got)
		}
	}
}

func TestCatURL(t *testing.T) {
	// only friendica's login path answers
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := testProber(1)
	if got := p.CatURL(context.Background(), hostOf(ts)); got != "friendica" {
		t.Fatalf("expected friendica got %q\n", got)
	}
}

func TestCatURLActsOnAnything(t *testing.T) {
	// an instance answering the bogus URL is uncategorizable
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	p := testProber(1)
	if got := p.CatURL(context.Background(), hostOf(ts)); got != "" {
		t.Fatalf("expected no category got %q\n", got)
	}
}
