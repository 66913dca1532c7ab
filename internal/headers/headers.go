// Package headers implements the Header Rewriter (C16): the atomic set
// of header mutations a converted response must reflect before the body
// starts (spec.md §4.16).
package headers

import (
	"net/http"
	"strconv"
	"strings"
)

// RewriteConverted applies the full §4.16 contract to h in place for a
// converted 200 response. bodyLen is len(markdown); etag is the
// Markdown variant's ETag, or "" if generate_etag is off; tokenCount is
// only written when tokenEstimate is true.
func RewriteConverted(h http.Header, bodyLen int, etag string, authenticated, tokenEstimate bool, tokenCount int) {
	h.Set("Content-Type", "text/markdown; charset=utf-8")
	AddVaryAccept(h)
	h.Set("Content-Length", strconv.Itoa(bodyLen))
	h.Del("Transfer-Encoding")
	h.Del("ETag")
	if etag != "" {
		h.Set("ETag", etag)
	}
	h.Del("Content-Encoding")
	h.Del("Accept-Ranges")
	if tokenEstimate {
		h.Set("X-Markdown-Tokens", strconv.Itoa(tokenCount))
	}
	if authenticated {
		upgradeCacheScope(h)
	}
}

// RewriteNotModified applies the 304 header contract of spec.md §4.15:
// retain the validator and Vary, remove Content-Length, clear entity
// headers.
func RewriteNotModified(h http.Header, etag string) {
	AddVaryAccept(h)
	if etag != "" {
		h.Set("ETag", etag)
	}
	h.Del("Content-Length")
	h.Del("Content-Type")
	h.Del("Content-Encoding")
	h.Del("Transfer-Encoding")
}

// AddVaryAccept ensures Vary contains Accept as a whole comma-separated
// token (case-insensitive match), appending it only if absent.
func AddVaryAccept(h http.Header) {
	existing := h.Get("Vary")
	if existing == "" {
		h.Set("Vary", "Accept")
		return
	}
	for _, tok := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "Accept") {
			return
		}
	}
	h.Set("Vary", existing+", Accept")
}

// upgradeCacheScope implements the authenticated-response cache-control
// rule: add `private` if absent, upgrade `public` to `private`, never
// downgrade an existing `no-store`.
func upgradeCacheScope(h http.Header) {
	cc := h.Get("Cache-Control")
	if cc == "" {
		h.Set("Cache-Control", "private")
		return
	}

	directives := strings.Split(cc, ",")
	hasNoStore := false
	hasPrivate := false
	publicIdx := -1
	for i, d := range directives {
		d = strings.TrimSpace(strings.ToLower(d))
		switch d {
		case "no-store":
			hasNoStore = true
		case "private":
			hasPrivate = true
		case "public":
			publicIdx = i
		}
	}

	if hasNoStore {
		return
	}
	if hasPrivate {
		return
	}
	if publicIdx >= 0 {
		directives[publicIdx] = " private"
		h.Set("Cache-Control", strings.Join(directives, ","))
		return
	}
	// No explicit scope directive: add private.
	h.Set("Cache-Control", cc+", private")
}
