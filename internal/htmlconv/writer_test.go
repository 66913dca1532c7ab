package htmlconv

import "testing"

func TestWriterCollapsesBlankLines(t *testing.T) {
	w := &writer{}
	w.text("one")
	w.blank()
	w.blank()
	w.blank()
	w.text("two")
	got := w.string()
	want := "one\n\ntwo\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriterTrimsTrailingWhitespace(t *testing.T) {
	w := &writer{}
	w.text("hello   ")
	w.text("\n")
	w.text("world")
	got := w.string()
	want := "hello\nworld\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriterCollapsesIntraLineSpaces(t *testing.T) {
	w := &writer{}
	w.text("a     b")
	got := w.string()
	want := "a b\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriterRawDoesNotCollapseSpaces(t *testing.T) {
	w := &writer{}
	w.raw("  code   here")
	got := w.string()
	want := "  code   here\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriterEmptyIsEmpty(t *testing.T) {
	w := &writer{}
	if got := w.string(); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestWriterExactlyOneTrailingNewline(t *testing.T) {
	w := &writer{}
	w.text("a")
	w.blank()
	w.blank()
	got := w.string()
	if got != "a\n" {
		t.Errorf("got %q, want %q", got, "a\n")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	w1 := &writer{}
	w1.text("x   y")
	w1.blank()
	w1.blank()
	once := w1.string()

	w2 := &writer{}
	w2.raw(once)
	twice := w2.string()

	if once != twice {
		t.Errorf("normalize not idempotent: %q vs %q", once, twice)
	}
}
