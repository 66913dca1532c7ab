package htmlconv

import "strings"

// frontMatterFields is the fixed emission order spec.md §4.11 mandates.
// A generic YAML marshaler would reorder struct fields by reflection tag
// order or map iteration, neither of which is guaranteed stable across
// the standard library's yaml packages; emission is hand-written instead
// so the byte layout never depends on marshaler internals (Invariant 4).
var frontMatterFields = []struct {
	name string
	get  func(Metadata) string
}{
	{"title", func(m Metadata) string { return m.Title }},
	{"url", func(m Metadata) string { return m.URL }},
	{"description", func(m Metadata) string { return m.Description }},
	{"image", func(m Metadata) string { return m.Image }},
	{"author", func(m Metadata) string { return m.Author }},
	{"published", func(m Metadata) string { return m.Published }},
}

// RenderFrontMatter serializes m as a YAML front-matter block
// (`---\n...\n---\n\n`), including only non-empty fields in fixed order.
// Returns "" if no field is populated.
func RenderFrontMatter(m Metadata) string {
	var lines []string
	for _, f := range frontMatterFields {
		v := f.get(m)
		if v == "" {
			continue
		}
		lines = append(lines, f.name+": "+quoteYAML(v))
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("---\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("---\n\n")
	return b.String()
}

// quoteYAML double-quotes s with the exact escape set spec.md §4.11
// specifies. Unicode characters pass through unchanged.
func quoteYAML(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
