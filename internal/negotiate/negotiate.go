// Package negotiate implements the Accept Negotiator (C1): it decides
// whether the requesting client has opted into Markdown by parsing the
// request's Accept header as a weighted list of media ranges.
package negotiate

import (
	"sort"
	"strconv"
	"strings"
)

const markdownType = "text/markdown"

// mediaRange is one comma-separated entry of an Accept header.
type mediaRange struct {
	raw     string // the entry as it appeared, trimmed
	typ     string // primary type, lowercased ("text", "*")
	subtype string // subtype, lowercased ("markdown", "*")
	q       float64
	index   int // original position, for the lexical tie-break
}

func (m mediaRange) matchesMarkdown(onWildcard bool) bool {
	if m.typ == "text" && m.subtype == "markdown" {
		return true
	}
	if !onWildcard {
		return false
	}
	if m.typ == "*" && m.subtype == "*" {
		return true
	}
	if m.typ == "text" && m.subtype == "*" {
		return true
	}
	return false
}

// specificity ranks a range for tie-breaking: an exact type/subtype match
// outranks a partial wildcard, which outranks "*/*".
func (m mediaRange) specificity() int {
	switch {
	case m.typ != "*" && m.subtype != "*":
		return 2
	case m.typ != "*":
		return 1
	default:
		return 0
	}
}

// Wants parses accept (the raw Accept header value) and reports whether
// the client has requested Markdown, per spec.md §4.1: the
// highest-quality acceptable range must match text/markdown with q > 0,
// wildcards only counting when onWildcard is set. Ties between ranges of
// equal quality go to the more specific range, and between ranges of
// equal specificity to whichever appeared first in the header text.
func Wants(accept string, onWildcard bool) bool {
	ranges := parse(accept)
	if len(ranges) == 0 {
		return false
	}

	best, ok := selectBest(ranges, onWildcard)
	if !ok {
		return false
	}
	return best.matchesMarkdown(onWildcard) && best.q > 0
}

// selectBest finds the highest-q range among those that could plausibly
// decide the outcome (markdown-matching and html-matching ranges), tie-
// breaking by specificity then by lexical order of the original header
// text.
func selectBest(ranges []mediaRange, onWildcard bool) (mediaRange, bool) {
	candidates := make([]mediaRange, 0, len(ranges))
	for _, r := range ranges {
		if r.matchesMarkdown(onWildcard) || (r.typ == "text" && r.subtype == "html") {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return mediaRange{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.q != b.q {
			return a.q > b.q
		}
		if a.specificity() != b.specificity() {
			return a.specificity() > b.specificity()
		}
		// Equal quality and specificity (e.g. text/html vs text/markdown):
		// the entry that appeared first in the header wins.
		return a.index < b.index
	})
	return candidates[0], true
}

func parse(accept string) []mediaRange {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return nil
	}

	parts := strings.Split(accept, ",")
	ranges := make([]mediaRange, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		segs := strings.Split(part, ";")
		typeSeg := strings.TrimSpace(segs[0])
		typ, subtype := splitType(typeSeg)
		if typ == "" {
			continue
		}

		q := 1.0
		for _, param := range segs[1:] {
			param = strings.TrimSpace(param)
			name, val, found := strings.Cut(param, "=")
			if !found || !strings.EqualFold(strings.TrimSpace(name), "q") {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				q = parsed
			}
		}

		ranges = append(ranges, mediaRange{
			raw:     part,
			typ:     typ,
			subtype: subtype,
			q:       q,
			index:   i,
		})
	}
	return ranges
}

func splitType(typeSeg string) (typ, subtype string) {
	t, s, ok := strings.Cut(typeSeg, "/")
	if !ok {
		return "", ""
	}
	return strings.ToLower(strings.TrimSpace(t)), strings.ToLower(strings.TrimSpace(s))
}
