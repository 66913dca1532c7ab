package htmlconv

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/mderrors"
)

// blockContainers are elements with no Markdown marker of their own that
// still read as paragraph-level separators (spec.md §4.9's "paragraphs
// separated by one blank line" extends naturally to these).
var blockContainers = map[string]bool{
	"div": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "figure": true,
	"figcaption": true,
}

// emitter walks a parsed DOM and writes Markdown through a normalizing
// writer (C9), consulting the sanitizer (C8) inline for every element and
// attribute rather than as a separate mutation pass.
type emitter struct {
	w      *writer
	ctx    *Context
	flavor config.Flavor
	depth  int
}

func newEmitter(ctx *Context, flavor config.Flavor) *emitter {
	return &emitter{w: &writer{}, ctx: ctx, flavor: flavor}
}

func (e *emitter) emit(n *html.Node) error {
	if err := e.ctx.Tick(); err != nil {
		return err
	}
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxNestingDepth {
		return mderrors.New(mderrors.StructureError, "DOM nesting exceeds maximum depth")
	}

	switch n.Type {
	case html.TextNode:
		e.w.text(n.Data)
		return nil
	case html.ElementNode:
		return e.emitElement(n)
	case html.DocumentNode:
		return e.emitChildren(n)
	default: // comment, doctype, etc: contribute nothing
		return nil
	}
}

func (e *emitter) emitChildren(n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := e.emit(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) emitElement(n *html.Node) error {
	tag := n.Data

	if isDangerousElement(tag) {
		return nil
	}

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(tag[1] - '0')
		e.w.blank()
		e.w.text(strings.Repeat("#", level) + " ")
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.blank()
		return nil

	case "p":
		e.w.blank()
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.blank()
		return nil

	case "br":
		e.w.raw("\n")
		return nil

	case "hr":
		e.w.blank()
		e.w.raw("---")
		e.w.blank()
		return nil

	case "a":
		href := safeAttr(n, "href")
		if href == "" {
			return e.emitChildren(n)
		}
		e.w.text("[")
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.text("](" + href + ")")
		return nil

	case "img":
		src := safeAttr(n, "src")
		if src == "" {
			return nil
		}
		alt := attr(n, "alt")
		e.w.text("![" + alt + "](" + src + ")")
		return nil

	case "strong", "b":
		e.w.text("**")
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.text("**")
		return nil

	case "em", "i":
		e.w.text("*")
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.text("*")
		return nil

	case "del", "s", "strike":
		if e.flavor != config.FlavorGFM {
			return e.emitChildren(n)
		}
		e.w.text("~~")
		if err := e.emitChildren(n); err != nil {
			return err
		}
		e.w.text("~~")
		return nil

	case "pre":
		return e.emitCodeBlock(n)

	case "code":
		text, err := e.collectText(n)
		if err != nil {
			return err
		}
		e.w.raw("`")
		e.w.raw(text)
		e.w.raw("`")
		return nil

	case "ul":
		return e.emitList(n, false, 0)

	case "ol":
		return e.emitList(n, true, 0)

	case "blockquote":
		return e.emitBlockquote(n)

	case "table":
		if e.flavor != config.FlavorGFM {
			return e.emitChildren(n)
		}
		return e.emitTable(n)

	default:
		if blockContainers[tag] {
			e.w.blank()
			if err := e.emitChildren(n); err != nil {
				return err
			}
			e.w.blank()
			return nil
		}
		return e.emitChildren(n)
	}
}

func (e *emitter) emitCodeBlock(n *html.Node) error {
	target := n
	if code := firstElementChild(n, "code"); code != nil {
		target = code
	}
	text, err := e.collectText(target)
	if err != nil {
		return err
	}

	e.w.blank()
	e.w.raw("```\n")
	e.w.raw(text)
	if !strings.HasSuffix(text, "\n") {
		e.w.raw("\n")
	}
	e.w.raw("```")
	e.w.blank()
	return nil
}

func (e *emitter) emitList(n *html.Node, ordered bool, depth int) error {
	if depth == 0 {
		e.w.blank()
	}
	index := 1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := e.ctx.Tick(); err != nil {
			return err
		}
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		prefix := strings.Repeat("  ", depth)
		var marker string
		if ordered {
			marker = fmt.Sprintf("%d. ", index)
			index++
		} else {
			marker = "- "
		}
		e.w.raw(prefix + marker)
		if err := e.emitListItemBody(c, depth); err != nil {
			return err
		}
		e.w.raw("\n")
	}
	if depth == 0 {
		e.w.blank()
	}
	return nil
}

func (e *emitter) emitListItemBody(n *html.Node, depth int) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
			e.w.raw("\n")
			if err := e.emitList(c, c.Data == "ol", depth+1); err != nil {
				return err
			}
			continue
		}
		if err := e.emit(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) emitBlockquote(n *html.Node) error {
	content, err := e.renderChildrenToString(n)
	if err != nil {
		return err
	}

	e.w.blank()
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		if line == "" {
			e.w.raw(">")
		} else {
			e.w.raw("> " + line)
		}
		e.w.raw("\n")
	}
	e.w.blank()
	return nil
}

func (e *emitter) emitTable(n *html.Node) error {
	var rows [][]string
	headerRow := -1
	rowIdx := 0

	var walkRows func(*html.Node) error
	walkRows = func(node *html.Node) error {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if err := e.ctx.Tick(); err != nil {
				return err
			}
			if c.Type == html.ElementNode && c.Data == "tr" {
				var cells []string
				hasHeader := false
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode {
						continue
					}
					if cell.Data != "th" && cell.Data != "td" {
						continue
					}
					if cell.Data == "th" {
						hasHeader = true
					}
					text, err := e.renderChildrenToString(cell)
					if err != nil {
						return err
					}
					text = strings.ReplaceAll(text, "\n", " ")
					text = strings.TrimSpace(strings.ReplaceAll(text, "|", "\\|"))
					cells = append(cells, text)
				}
				if hasHeader && headerRow == -1 {
					headerRow = rowIdx
				}
				rows = append(rows, cells)
				rowIdx++
				continue
			}
			if err := walkRows(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walkRows(n); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if headerRow == -1 {
		headerRow = 0
	}

	e.w.blank()
	header := rows[headerRow]
	e.w.raw("| " + strings.Join(header, " | ") + " |")
	e.w.raw("\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	e.w.raw("| " + strings.Join(sep, " | ") + " |")
	e.w.raw("\n")
	for i, row := range rows {
		if i == headerRow {
			continue
		}
		e.w.raw("| " + strings.Join(row, " | ") + " |")
		e.w.raw("\n")
	}
	e.w.blank()
	return nil
}

// renderChildrenToString recurses into n's children using a fresh
// normalizing writer sharing the same timeout context, returning the
// normalized result for line-prefixed embedding (blockquotes, table
// cells).
func (e *emitter) renderChildrenToString(n *html.Node) (string, error) {
	sub := &emitter{w: &writer{}, ctx: e.ctx, flavor: e.flavor, depth: e.depth}
	if err := sub.emitChildren(n); err != nil {
		return "", err
	}
	return sub.w.string(), nil
}

// collectText flattens n's text content, ticking the node counter for
// every visited descendant so large <pre>/<code> subtrees still
// contribute to the cooperative timeout budget.
func (e *emitter) collectText(n *html.Node) (string, error) {
	var b strings.Builder
	var err error
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if err != nil {
			return
		}
		if tickErr := e.ctx.Tick(); tickErr != nil {
			err = tickErr
			return
		}
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// attr returns the named attribute's value, refusing event-handler
// attributes ("on*", spec.md §4.8) even when a caller asks for one by
// name, so no future call site can accidentally surface one.
func attr(n *html.Node, name string) string {
	if isDangerousAttr(name) {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// safeAttr returns the named attribute's value, or "" if absent or if it
// fails the DOM sanitizer's URL-scheme check (spec.md §4.8).
func safeAttr(n *html.Node, name string) string {
	v := attr(n, name)
	if v == "" || !safeURL(v) {
		return ""
	}
	return v
}

func firstElementChild(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}
