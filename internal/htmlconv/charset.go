package htmlconv

import (
	"bytes"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// DetectCharset implements the Charset Detector (C6) cascade: declared
// Content-Type charset, then an in-body <meta> scan, then a UTF-8
// default. It returns the canonicalized, uppercased charset label.
// golang.org/x/net/html/charset.DetermineEncoding already folds the
// Content-Type parameter, the first-1024-byte meta scan, and a BOM check
// into a single pass; we only need to canonicalize and uppercase its
// verdict to match spec.md §4.6's output form.
func DetectCharset(contentType string, body []byte) string {
	window := body
	if len(window) > 1024 {
		window = window[:1024]
	}

	_, name, certain := charset.DetermineEncoding(window, contentType)
	// DetermineEncoding itself falls back to windows-1252 when nothing is
	// declared. Any <meta> declaration contains the word "charset", so an
	// uncertain windows-1252 verdict with no such word in the window means
	// the UTF-8 default applies.
	if !certain && name == "windows-1252" && !bytes.Contains(bytes.ToLower(window), []byte("charset")) {
		return "UTF-8"
	}
	return canonicalLabel(name)
}

// canonicalLabel maps a charset label to its canonical name via
// golang.org/x/text's HTML charset index, uppercased. Unknown labels are
// returned uppercased as-is.
func canonicalLabel(label string) string {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return strings.ToUpper(label)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return strings.ToUpper(label)
	}
	return strings.ToUpper(name)
}

// IsUTF8 reports whether label names the UTF-8 charset.
func IsUTF8(label string) bool {
	return strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8")
}
