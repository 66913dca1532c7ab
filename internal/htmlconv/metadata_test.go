package htmlconv

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestExtractMetadataPrefersExplicitOverOG(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head>
		<title>Explicit Title</title>
		<meta property="og:title" content="OG Title">
		<meta name="description" content="Explicit Description">
		<link rel="canonical" href="https://example.com/canonical">
		<meta name="author" content="Jane">
		<meta name="article:published_time" content="2026-01-01">
	</head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	m := ExtractMetadata(doc, "")
	if m.Title != "Explicit Title" {
		t.Errorf("Title = %q, want Explicit Title", m.Title)
	}
	if m.Description != "Explicit Description" {
		t.Errorf("Description = %q", m.Description)
	}
	if m.URL != "https://example.com/canonical" {
		t.Errorf("URL = %q", m.URL)
	}
	if m.Author != "Jane" {
		t.Errorf("Author = %q", m.Author)
	}
	if m.Published != "2026-01-01" {
		t.Errorf("Published = %q", m.Published)
	}
}

func TestExtractMetadataFallsBackToOG(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head>
		<meta property="og:title" content="OG Only Title">
		<meta property="og:image" content="/img.png">
	</head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	m := ExtractMetadata(doc, "https://example.com/page")
	if m.Title != "OG Only Title" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.Image != "https://example.com/img.png" {
		t.Errorf("Image = %q, want resolved absolute URL", m.Image)
	}
}

func TestExtractMetadataEmpty(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head></head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := ExtractMetadata(doc, "")
	if !m.Empty() {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}
