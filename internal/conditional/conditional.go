// Package conditional implements the Conditional Evaluator (C15): it
// decides between a 200 and a 304 response once conversion has produced
// (or would produce) a variant ETag.
package conditional

import (
	"net/http"
	"strings"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
)

// Result is the conditional-request outcome.
type Result struct {
	NotModified bool
}

// Evaluate implements spec.md §4.15. etag is the Markdown variant's ETag
// (quoted form); it may be empty when mode is IfModifiedSinceOnly, which
// skips ETag comparison entirely. upstreamLastModified and
// ifModifiedSince are parsed as HTTP dates; the response is not modified
// when Last-Modified is not later than If-Modified-Since. An unparsable
// date on either side never yields a 304.
func Evaluate(mode config.ConditionalMode, etag, ifNoneMatch, upstreamLastModified, ifModifiedSince string) Result {
	if mode == config.ConditionalDisabled {
		return Result{}
	}

	if mode == config.ConditionalIMSOnly {
		if notModifiedSince(upstreamLastModified, ifModifiedSince) {
			return Result{NotModified: true}
		}
		return Result{}
	}

	// FullSupport: ETag takes precedence over If-Modified-Since (SPEC_FULL
	// §5.2's resolution of the open question in spec.md §9): once
	// If-None-Match is sent, If-Modified-Since is not consulted.
	if ifNoneMatch != "" {
		if etag != "" && matchesAny(ifNoneMatch, etag) {
			return Result{NotModified: true}
		}
		return Result{}
	}
	if notModifiedSince(upstreamLastModified, ifModifiedSince) {
		return Result{NotModified: true}
	}
	return Result{}
}

// matchesAny implements strong comparison of opaque ETags: header may
// list multiple comma-separated tokens (or "*").
func matchesAny(ifNoneMatch, etag string) bool {
	for _, tok := range strings.Split(ifNoneMatch, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "*" || tok == etag {
			return true
		}
	}
	return false
}

func notModifiedSince(upstreamLastModified, ifModifiedSince string) bool {
	if upstreamLastModified == "" || ifModifiedSince == "" {
		return false
	}
	lm, err1 := http.ParseTime(upstreamLastModified)
	ims, err2 := http.ParseTime(ifModifiedSince)
	if err1 != nil || err2 != nil {
		return false
	}
	return !lm.After(ims)
}
