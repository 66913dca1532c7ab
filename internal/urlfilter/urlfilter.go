// Package urlfilter is a host-level request allow-list, unrelated to
// content negotiation: it decides which upstream URLs the proxy will
// even forward, independent of whether their responses get converted.
package urlfilter

import (
	"fmt"
	"net/http"
	"regexp"
)

// URLFilter holds compiled regexes for allowed request URLs.
// If empty, all requests are allowed.
type URLFilter struct {
	patterns []*regexp.Regexp
}

// New compiles a slice of regex strings into a URLFilter.
// Returns an error if any pattern is invalid.
func New(patterns []string) (*URLFilter, error) {
	if len(patterns) == 0 {
		return &URLFilter{patterns: []*regexp.Regexp{}}, nil
	}

	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", p, err)
		}
		compiled[i] = re
	}

	return &URLFilter{patterns: compiled}, nil
}

// Allowed reports whether the given URL matches any allowed pattern.
// If no patterns are configured, all requests are allowed.
func (f *URLFilter) Allowed(rawURL string) bool {
	if len(f.patterns) == 0 {
		return true
	}

	for _, p := range f.patterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Middleware returns an http.Handler wrapper that returns 403
// for requests not matched by the filter.
func (f *URLFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reconstruct the full URL
		rawURL := r.URL.String()
		if !r.URL.IsAbs() {
			// Try to reconstruct with scheme and host if needed
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			rawURL = scheme + "://" + r.Host + r.URL.String()
		}

		if !f.Allowed(rawURL) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
