package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/mdfilter"
	"github.com/rickcrawford/markdowninthemiddle/internal/urlfilter"
)

type stubTransport struct {
	body        string
	contentType string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header := http.Header{"Content-Type": []string{s.contentType}}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
	}, nil
}

func TestNewServesConvertedMarkdown(t *testing.T) {
	enabled := true
	cfg := &config.Config{FilterRoot: config.Scope{Enabled: &enabled}}

	srv := New(Options{
		Addr:         ":0",
		Config:       cfg,
		Orchestrator: mdfilter.New(nil, nil),
		Transport:    &stubTransport{body: "<h1>Hi</h1>", contentType: "text/html"},
	})
	if srv.Handler == nil {
		t.Fatal("expected a configured handler")
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page", nil)
	req.Header.Set("Accept", "text/markdown")
	req.RequestURI = "http://example.com/page"
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "# Hi") {
		t.Errorf("expected converted markdown, got %q", rec.Body.String())
	}
}

func TestNewRejectsRequestOutsideURLFilter(t *testing.T) {
	enabled := true
	cfg := &config.Config{FilterRoot: config.Scope{Enabled: &enabled}}
	uf, err := urlfilter.New([]string{`^https://allowed\.example\.com`})
	if err != nil {
		t.Fatalf("compiling filter: %v", err)
	}

	srv := New(Options{
		Addr:         ":0",
		Config:       cfg,
		Orchestrator: mdfilter.New(nil, nil),
		URLFilter:    uf,
		Transport:    &stubTransport{body: "<h1>Hi</h1>", contentType: "text/html"},
	})

	req := httptest.NewRequest(http.MethodGet, "http://blocked.example.com/page", nil)
	req.RequestURI = "http://blocked.example.com/page"
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed host, got %d", rec.Code)
	}
}
