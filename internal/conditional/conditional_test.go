package conditional

import (
	"testing"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
)

func TestEvaluateDisabled(t *testing.T) {
	r := Evaluate(config.ConditionalDisabled, `"abc"`, `"abc"`, "", "")
	if r.NotModified {
		t.Error("disabled mode must never report NotModified")
	}
}

func TestEvaluateFullSupportETagMatch(t *testing.T) {
	r := Evaluate(config.ConditionalFull, `"abc"`, `"abc"`, "", "")
	if !r.NotModified {
		t.Error("expected NotModified on matching ETag")
	}
}

func TestEvaluateFullSupportETagMismatch(t *testing.T) {
	r := Evaluate(config.ConditionalFull, `"abc"`, `"xyz"`, "", "")
	if r.NotModified {
		t.Error("expected modified on mismatched ETag")
	}
}

func TestEvaluateFullSupportWildcard(t *testing.T) {
	r := Evaluate(config.ConditionalFull, `"abc"`, "*", "", "")
	if !r.NotModified {
		t.Error("expected NotModified on wildcard If-None-Match")
	}
}

func TestEvaluateFullSupportPrefersETagOverIMS(t *testing.T) {
	// Last-Modified says stale, but ETag matches: ETag wins.
	r := Evaluate(config.ConditionalFull, `"abc"`, `"abc"`,
		"Mon, 01 Jan 2001 00:00:00 GMT", "Mon, 01 Jan 2030 00:00:00 GMT")
	if !r.NotModified {
		t.Error("expected ETag match to take precedence")
	}
}

func TestEvaluateIMSOnly(t *testing.T) {
	r := Evaluate(config.ConditionalIMSOnly, "", "",
		"Mon, 01 Jan 2001 00:00:00 GMT", "Mon, 01 Jan 2030 00:00:00 GMT")
	if !r.NotModified {
		t.Error("expected NotModified when last-modified is before If-Modified-Since")
	}
}

func TestEvaluateIMSOnlyModified(t *testing.T) {
	r := Evaluate(config.ConditionalIMSOnly, "", "",
		"Mon, 01 Jan 2030 00:00:00 GMT", "Mon, 01 Jan 2001 00:00:00 GMT")
	if r.NotModified {
		t.Error("expected modified when last-modified is after If-Modified-Since")
	}
}

func TestEvaluateNoConditionalHeaders(t *testing.T) {
	r := Evaluate(config.ConditionalFull, `"abc"`, "", "", "")
	if r.NotModified {
		t.Error("expected 200 with no conditional headers present")
	}
}
