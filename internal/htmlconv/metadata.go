package htmlconv

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Metadata holds the fields the Metadata Extractor (C10) collects from
// <head>, in the fixed order the Front-Matter Emitter (C11) serializes
// them.
type Metadata struct {
	Title       string
	URL         string
	Description string
	Image       string
	Author      string
	Published   string
}

// Empty reports whether no field was populated.
func (m Metadata) Empty() bool {
	return m == Metadata{}
}

// ExtractMetadata walks the document's <head> collecting title,
// description, canonical URL, image, author, and published date,
// preferring the more specific source when more than one is present
// (spec.md §4.10).
func ExtractMetadata(doc *html.Node, baseURL string) Metadata {
	head := findHead(doc)
	if head == nil {
		return Metadata{}
	}

	var m Metadata
	var ogTitle, twitterTitle, metaDescription, ogDescription string
	var canonical, ogURL, ogImage, metaAuthor, articleAuthor, published string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if m.Title == "" && n.FirstChild != nil {
					m.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				property := strings.ToLower(attr(n, "property"))
				content := attr(n, "content")
				switch {
				case property == "og:title":
					ogTitle = content
				case property == "twitter:title":
					twitterTitle = content
				case name == "description":
					metaDescription = content
				case property == "og:description":
					ogDescription = content
				case property == "og:url":
					ogURL = content
				case property == "og:image":
					ogImage = content
				case name == "author":
					metaAuthor = content
				case property == "article:author":
					articleAuthor = content
				case name == "article:published_time":
					published = content
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					canonical = attr(n, "href")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(head)

	if m.Title == "" {
		m.Title = firstNonEmpty(ogTitle, twitterTitle)
	}
	m.Description = firstNonEmpty(metaDescription, ogDescription)
	m.URL = firstNonEmpty(canonical, ogURL, baseURL)
	m.Image = resolveURL(firstNonEmpty(ogImage), baseURL)
	m.Author = firstNonEmpty(metaAuthor, articleAuthor)
	m.Published = published

	return m
}

func findHead(doc *html.Node) *html.Node {
	var head *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if head != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "head" {
			head = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return head
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveURL resolves raw against base when both are present and raw is
// relative; otherwise it returns raw unchanged.
func resolveURL(raw, base string) string {
	if raw == "" || base == "" {
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	rawURL, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if rawURL.IsAbs() {
		return raw
	}
	return baseURL.ResolveReference(rawURL).String()
}
