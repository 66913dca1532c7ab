// Package eligibility implements the Eligibility Gate (C2) and Auth
// Classifier (C3): the checks that decide whether a response is a
// candidate for conversion at all, independent of whether the client
// asked for Markdown.
package eligibility

import (
	"net/http"
	"strings"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
)

// Reason names why a response was declined, for logging (spec.md §7).
type Reason string

const (
	OK                  Reason = ""
	ReasonMethod        Reason = "method"
	ReasonStatus        Reason = "status"
	ReasonRange         Reason = "range"
	ReasonContentType   Reason = "content_type"
	ReasonStreamType    Reason = "stream_type"
	ReasonEncoding      Reason = "content_encoding"
	ReasonTooLarge      Reason = "declared_length"
	ReasonAuthenticated Reason = "authenticated"
)

// RequestDecoded holds the subset of request headers the gate needs.
type RequestDecoded struct {
	Method       string
	HasRange     bool
	Authorization string
	Cookies      []*http.Cookie
}

// DecodeRequest extracts the fields the gate and classifier need from an
// *http.Request.
func DecodeRequest(r *http.Request) RequestDecoded {
	return RequestDecoded{
		Method:        r.Method,
		HasRange:      r.Header.Get("Range") != "",
		Authorization: r.Header.Get("Authorization"),
		Cookies:       r.Cookies(),
	}
}

// Authenticated implements the Auth Classifier (C3): a request is
// authenticated if it carries a non-empty Authorization header or any
// cookie whose name matches a configured auth_cookies pattern.
func Authenticated(req RequestDecoded, cookiePatterns []string) bool {
	if req.Authorization != "" {
		return true
	}
	for _, c := range req.Cookies {
		if cookieNameMatches(c.Name, cookiePatterns) {
			return true
		}
	}
	return false
}

// cookieNameMatches reports whether name matches any pattern. A pattern
// is either an exact name or a literal prefix followed by "*", matching
// any name with that prefix. Matching is case-sensitive.
func cookieNameMatches(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			prefix := strings.TrimSuffix(p, "*")
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}

// ResponseDecoded holds the subset of upstream response headers the gate
// needs.
type ResponseDecoded struct {
	Status          int
	ContentType     string // primary type, lowercased, parameters stripped
	ContentEncoding string // lowercased
	ContentLength   int64  // -1 if absent/unknown
	HasContentRange bool
}

// DecodeResponse extracts the fields the gate needs from an *http.Response.
func DecodeResponse(resp *http.Response) ResponseDecoded {
	ct := resp.Header.Get("Content-Type")
	primary, _, _ := strings.Cut(ct, ";")
	primary = strings.ToLower(strings.TrimSpace(primary))

	length := int64(-1)
	if resp.ContentLength >= 0 {
		length = resp.ContentLength
	}

	return ResponseDecoded{
		Status:          resp.StatusCode,
		ContentType:     primary,
		ContentEncoding: strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))),
		ContentLength:   length,
		HasContentRange: resp.Header.Get("Content-Range") != "",
	}
}

var decodableEncodings = map[string]bool{
	"":        true, // absent is fine
	"gzip":    true,
	"deflate": true,
	"br":      true,
}

// Eligible implements the Eligibility Gate (C2). It is evaluated twice:
// once at header phase with a zero ResponseDecoded (method/range only
// known), and again once upstream response headers arrive.
func Eligible(req RequestDecoded, resp ResponseDecoded, authenticated bool, f config.Filter) (bool, Reason) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false, ReasonMethod
	}
	if req.HasRange {
		return false, ReasonRange
	}
	if authenticated && f.AuthPolicy == config.AuthDeny {
		return false, ReasonAuthenticated
	}

	if resp.Status == 0 {
		// Header-phase check only; response not yet available.
		return true, OK
	}

	if resp.Status != http.StatusOK {
		return false, ReasonStatus
	}
	if resp.HasContentRange {
		return false, ReasonRange
	}
	if resp.ContentType != "text/html" {
		return false, ReasonContentType
	}
	if matchesStreamType(resp.ContentType, f.StreamTypes) {
		return false, ReasonStreamType
	}
	if resp.ContentEncoding != "" {
		if !f.AutoDecompress || !decodableEncodings[resp.ContentEncoding] {
			return false, ReasonEncoding
		}
	}
	if resp.ContentLength >= 0 && resp.ContentLength > f.MaxSize {
		return false, ReasonTooLarge
	}

	return true, OK
}

// matchesStreamType reports whether ct exactly matches one of types. Per
// SPEC_FULL §5.3, stream_types matches by exact type/subtype equality,
// not prefix or substring.
func matchesStreamType(ct string, types []string) bool {
	for _, t := range types {
		if strings.EqualFold(ct, t) {
			return true
		}
	}
	return false
}
