package htmlconv

import "strings"

// dangerousElements never contribute text to the Markdown output, along
// with all of their descendants (spec.md §4.8, Invariant 10).
var dangerousElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"object":   true,
	"embed":    true,
	"applet":   true,
	"link":     true,
	"base":     true,
}

// dangerousURLSchemes never appear in emitted link/image targets
// (Invariant 11).
var dangerousURLSchemes = []string{
	"javascript:", "data:", "vbscript:", "file:", "about:",
}

// isDangerousElement reports whether tag (lowercase) must be dropped
// entirely, descendants included.
func isDangerousElement(tag string) bool {
	return dangerousElements[tag]
}

// isDangerousAttr reports whether an attribute name must be stripped:
// any event handler ("on*", case-insensitive).
func isDangerousAttr(name string) bool {
	return len(name) >= 2 && strings.HasPrefix(strings.ToLower(name), "on")
}

// safeURL reports whether raw is safe to emit as an href/src target.
// Safe schemes are http:, https:, relative paths, and fragments; any of
// the dangerousURLSchemes (case-insensitive, leading/trailing space
// trimmed) is rejected.
func safeURL(raw string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for _, scheme := range dangerousURLSchemes {
		if strings.HasPrefix(trimmed, scheme) {
			return false
		}
	}
	return true
}
