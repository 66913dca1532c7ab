// Package htmlconv is the HTML→Markdown conversion engine: charset
// detection (C6), HTML5 parsing (C7), DOM sanitization (C8), Markdown
// emission (C9), metadata extraction (C10), front-matter (C11), token
// estimation (C12), ETag generation (C13), and the cooperative timeout
// budget (C14) that the Markdown emitter checks as it walks the DOM.
package htmlconv

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/mderrors"
)

// Options configures a single conversion, derived from the request's
// effective config.Filter plus response metadata the engine itself
// cannot observe (declared Content-Type, base URL).
type Options struct {
	ContentType string // upstream Content-Type header value, for charset detection
	Flavor      config.Flavor
	FrontMatter bool
	BaseURL     string
	Timeout     time.Duration // 0 = disabled
}

// Result is the Conversion Result the orchestrator consumes.
type Result struct {
	Markdown       []byte
	ETag           string
	TokenEstimate  int
	CharsetLabel   string
	CharsetWarning bool // declared charset was not UTF-8; conversion proceeded anyway
}

// Convert runs the full engine over body, the accumulated (already
// decompressed) response bytes.
func Convert(body []byte, opts Options) (*Result, error) {
	charsetLabel := DetectCharset(opts.ContentType, body)
	warning := !IsUTF8(charsetLabel)
	// SPEC_FULL §5.4: a declared non-UTF-8 charset is logged as a warning,
	// not treated as fatal by itself; only actually invalid UTF-8 bytes
	// raise EncodingError.
	if !utf8.Valid(body) {
		return nil, mderrors.New(mderrors.EncodingError, "body is not valid UTF-8")
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, mderrors.Wrap(mderrors.StructureError, "HTML parse failed", err)
	}

	ctx := NewContext(opts.Timeout)
	em := newEmitter(ctx, opts.Flavor)
	if err := em.emit(doc); err != nil {
		return nil, err
	}
	markdown := em.w.string()

	if opts.FrontMatter {
		meta := ExtractMetadata(doc, opts.BaseURL)
		if !meta.Empty() {
			markdown = RenderFrontMatter(meta) + markdown
		}
	}
	if markdown == "" {
		markdown = "\n"
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}

	mdBytes := []byte(markdown)
	return &Result{
		Markdown:       mdBytes,
		ETag:           GenerateETag(mdBytes),
		TokenEstimate:  EstimateTokens(markdown),
		CharsetLabel:   charsetLabel,
		CharsetWarning: warning,
	}, nil
}
