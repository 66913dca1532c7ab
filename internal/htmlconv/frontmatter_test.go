package htmlconv

import "testing"

func TestRenderFrontMatterEmpty(t *testing.T) {
	if got := RenderFrontMatter(Metadata{}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRenderFrontMatterOrderAndEscaping(t *testing.T) {
	m := Metadata{
		Title:       `He said "hi"`,
		URL:         "https://example.com",
		Description: "line1\nline2",
		Author:      `back\slash`,
	}
	got := RenderFrontMatter(m)
	want := "---\n" +
		`title: "He said \"hi\""` + "\n" +
		`url: "https://example.com"` + "\n" +
		`description: "line1\nline2"` + "\n" +
		`author: "back\\slash"` + "\n" +
		"---\n\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderFrontMatterOmitsEmptyFields(t *testing.T) {
	m := Metadata{Title: "Only Title"}
	got := RenderFrontMatter(m)
	want := "---\ntitle: \"Only Title\"\n---\n\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
