package mdfilter

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/tokens"
)

func newReq(method, accept string) *http.Request {
	r := httptest.NewRequest(method, "http://example.com/page", nil)
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	return r
}

func newResp(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestProcessDisabledFilterBypasses(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<p>hi</p>")

	f := config.DefaultFilter()
	f.Enabled = false
	out := o.Process(req, resp, f, "r1")
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected passthrough 200, got %d", out.StatusCode)
	}
	body, _ := io.ReadAll(out.Body)
	if string(body) != "<p>hi</p>" {
		t.Errorf("body altered: %q", body)
	}
}

func TestProcessNoAcceptBypasses(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/html")
	resp := newResp(http.StatusOK, "text/html", "<p>hi</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	out := o.Process(req, resp, f, "r2")
	body, _ := io.ReadAll(out.Body)
	if string(body) != "<p>hi</p>" {
		t.Errorf("expected untouched body, got %q", body)
	}
}

func TestProcessConvertsHTML(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<h1>Title</h1><p>Body text.</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	out := o.Process(req, resp, f, "r3")
	if out.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", out.StatusCode)
	}
	if ct := out.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(out.Body)
	md := string(body)
	if !strings.Contains(md, "# Title") {
		t.Errorf("expected heading markdown, got %q", md)
	}
	if !strings.Contains(md, "Body text.") {
		t.Errorf("expected body text, got %q", md)
	}
	if out.Header.Get("ETag") == "" {
		t.Error("expected ETag to be set")
	}
}

func TestProcessHeadSuppressesBody(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodHead, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<p>hi</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	out := o.Process(req, resp, f, "r4")
	if out.ContentLength != 0 {
		t.Errorf("expected zero content length on HEAD, got %d", out.ContentLength)
	}
	if out.Header.Get("Content-Type") != "text/markdown; charset=utf-8" {
		t.Error("HEAD response should still carry converted headers")
	}
}

func TestProcessNotModified(t *testing.T) {
	markdown := "# Title\n\nBody text.\n"
	_ = markdown
	o := New(nil, nil)

	// First pass to discover the ETag a given body produces.
	req1 := newReq(http.MethodGet, "text/markdown")
	resp1 := newResp(http.StatusOK, "text/html", "<h1>Title</h1><p>Body text.</p>")
	f := config.DefaultFilter()
	f.Enabled = true
	out1 := o.Process(req1, resp1, f, "r5a")
	etag := out1.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on first pass")
	}

	req2 := newReq(http.MethodGet, "text/markdown")
	req2.Header.Set("If-None-Match", etag)
	resp2 := newResp(http.StatusOK, "text/html", "<h1>Title</h1><p>Body text.</p>")
	out2 := o.Process(req2, resp2, f, "r5b")
	if out2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", out2.StatusCode)
	}
	if out2.Header.Get("Content-Length") != "" {
		t.Error("304 must not carry Content-Length")
	}
}

func TestProcessResourceLimitReplaysOriginal(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/markdown")
	big := "<html>" + strings.Repeat("a", 200) + "</html>"
	resp := newResp(http.StatusOK, "text/html", big)

	f := config.DefaultFilter()
	f.Enabled = true
	f.MaxSize = 10
	out := o.Process(req, resp, f, "r6")
	if out.StatusCode != http.StatusOK {
		t.Fatalf("fail-open pass should preserve original status, got %d", out.StatusCode)
	}
	body, _ := io.ReadAll(out.Body)
	if string(body) != big {
		t.Errorf("expected byte-identical original body, got %q", body)
	}
}

func TestProcessResourceLimitBypassesEvenOnReject(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/markdown")
	big := "<html>" + strings.Repeat("a", 200) + "</html>"
	resp := newResp(http.StatusOK, "text/html", big)

	f := config.DefaultFilter()
	f.Enabled = true
	f.MaxSize = 10
	f.OnError = config.OnErrorReject
	out := o.Process(req, resp, f, "r7")
	if out.StatusCode != http.StatusOK {
		t.Fatalf("ResourceLimit must bypass to the original response regardless of on_error, got %d", out.StatusCode)
	}
	body, _ := io.ReadAll(out.Body)
	if string(body) != big {
		t.Errorf("expected byte-identical original body, got %q", body)
	}
}

func TestProcessDecompressesGzipBeforeConversion(t *testing.T) {
	o := New(nil, nil)
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("<p>compressed</p>"))
	gw.Close()

	req := newReq(http.MethodGet, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "")
	resp.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
	resp.Header.Set("Content-Encoding", "gzip")

	f := config.DefaultFilter()
	f.Enabled = true
	out := o.Process(req, resp, f, "r8")
	body, _ := io.ReadAll(out.Body)
	if !strings.Contains(string(body), "compressed") {
		t.Errorf("expected decompressed+converted body, got %q", body)
	}
	if out.Header.Get("Content-Encoding") != "" {
		t.Error("Content-Encoding must be removed from converted response")
	}
}

func TestProcessPreciseTokenCountOmittedWithoutCounter(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodGet, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<p>hi there</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	f.PreciseTokenCount = true
	out := o.Process(req, resp, f, "r10")
	if out.Header.Get("X-Markdown-Tokens-Precise") != "" {
		t.Error("precise header should be absent without a configured counter")
	}
}

func TestProcessPreciseTokenCountUsesCounter(t *testing.T) {
	counter, err := tokens.NewCounter("cl100k_base")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	o := New(nil, nil)
	o.PreciseCounter = counter

	req := newReq(http.MethodGet, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<p>hi there</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	f.PreciseTokenCount = true
	out := o.Process(req, resp, f, "r11")
	if out.Header.Get("X-Markdown-Tokens-Precise") == "" {
		t.Error("expected precise token header when counter is configured")
	}
}

func TestProcessIneligibleMethodBypasses(t *testing.T) {
	o := New(nil, nil)
	req := newReq(http.MethodPost, "text/markdown")
	resp := newResp(http.StatusOK, "text/html", "<p>hi</p>")

	f := config.DefaultFilter()
	f.Enabled = true
	out := o.Process(req, resp, f, "r9")
	body, _ := io.ReadAll(out.Body)
	if string(body) != "<p>hi</p>" {
		t.Errorf("expected untouched body for ineligible method, got %q", body)
	}
}
