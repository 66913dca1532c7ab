// Package errorpage renders the terse, opaque body emitted for
// `on_error=reject` (spec.md §4.18): a static 502 Bad Gateway page, with
// no internal error details, codes, or causes ever passed to the
// template context.
package errorpage

import (
	"os"

	"github.com/cbroglie/mustache"
)

const defaultTemplate = "Bad Gateway\n"

// Renderer renders the reject-path error body from an operator-supplied
// Mustache template, repurposing the teacher's JSON-to-Markdown template
// store (internal/templates) for a single static page instead of a
// per-URL conversion template.
type Renderer struct {
	template string
}

// New loads the Mustache template at path, or falls back to a built-in
// terse body when path is empty.
func New(path string) (*Renderer, error) {
	if path == "" {
		return &Renderer{template: defaultTemplate}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Renderer{template: string(b)}, nil
}

// Render produces the response body. The template context is
// deliberately empty: no error kind, detail, or cause ever reaches it.
func (r *Renderer) Render() (string, error) {
	return mustache.Render(r.template, map[string]string{})
}
