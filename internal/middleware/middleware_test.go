package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/mdfilter"
)

// mockTransport returns a fixed response for testing.
type mockTransport struct {
	statusCode  int
	contentType string
	body        string
	encoding    string
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header := http.Header{}
	header.Set("Content-Type", m.contentType)
	if m.encoding != "" {
		header.Set("Content-Encoding", m.encoding)
	}
	header.Set("Content-Length", strconv.Itoa(len(m.body)))

	return &http.Response{
		StatusCode:    m.statusCode,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(m.body)),
		ContentLength: int64(len(m.body)),
	}, nil
}

func newResponseProcessor(inner http.RoundTripper) *ResponseProcessor {
	enabled := true
	cfg := &config.Config{FilterRoot: config.Scope{Enabled: &enabled}}
	return &ResponseProcessor{
		Config:       cfg,
		Orchestrator: mdfilter.New(nil, nil),
		Inner:        inner,
	}
}

func withRequestID(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), chimw.RequestIDKey, "test-request-id")
	return req.WithContext(ctx)
}

func TestResponseProcessorHTMLToMarkdown(t *testing.T) {
	rp := newResponseProcessor(&mockTransport{
		statusCode:  200,
		contentType: "text/html; charset=utf-8",
		body:        "<h1>Hello</h1><p>World</p>",
	})

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	req.Header.Set("Accept", "text/markdown")
	resp, err := rp.RoundTrip(withRequestID(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	md := string(body)

	if !strings.Contains(md, "# Hello") {
		t.Errorf("expected markdown heading, got %q", md)
	}
	if !strings.Contains(md, "World") {
		t.Errorf("expected 'World' in markdown, got %q", md)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "text/markdown") {
		t.Errorf("expected text/markdown content type, got %q", ct)
	}
	if resp.Header.Get("Vary") != "Accept" {
		t.Errorf("expected Vary: Accept, got %q", resp.Header.Get("Vary"))
	}
}

func TestResponseProcessorNonHTMLPassThrough(t *testing.T) {
	rp := newResponseProcessor(&mockTransport{
		statusCode:  200,
		contentType: "application/json",
		body:        `{"key":"value"}`,
	})

	req, _ := http.NewRequest("GET", "http://example.com/api", nil)
	req.Header.Set("Accept", "text/markdown")
	resp, err := rp.RoundTrip(withRequestID(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"key":"value"}` {
		t.Errorf("expected JSON pass-through, got %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestResponseProcessorNoAcceptPassesThrough(t *testing.T) {
	rp := newResponseProcessor(&mockTransport{
		statusCode:  200,
		contentType: "text/html",
		body:        "<h1>Hello</h1>",
	})

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := rp.RoundTrip(withRequestID(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<h1>Hello</h1>" {
		t.Errorf("expected original HTML, got %q", body)
	}
}

func TestResponseProcessorGzipDecodedBeforeConversion(t *testing.T) {
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	gw.Write([]byte("<p>Negotiated</p>"))
	gw.Close()

	rp := newResponseProcessor(&mockTransport{
		statusCode:  200,
		contentType: "text/html",
		body:        compressed.String(),
		encoding:    "gzip",
	})

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	req.Header.Set("Accept", "text/markdown, text/html")
	resp, err := rp.RoundTrip(withRequestID(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Negotiated") {
		t.Errorf("expected markdown conversion, got %q", body)
	}
}

func BenchmarkResponseProcessorHTMLToMarkdown(b *testing.B) {
	html := `<html><body>
	<h1>Title</h1>
	<p>Paragraph with <strong>bold</strong> and <a href="https://example.com">link</a>.</p>
	<ul><li>One</li><li>Two</li><li>Three</li></ul>
	</body></html>`

	rp := newResponseProcessor(&mockTransport{
		statusCode:  200,
		contentType: "text/html",
		body:        html,
	})

	for b.Loop() {
		req, _ := http.NewRequest("GET", "http://example.com", nil)
		req.Header.Set("Accept", "text/markdown")
		resp, _ := rp.RoundTrip(withRequestID(req))
		io.ReadAll(resp.Body)
		resp.Body.Close()
	}
}
