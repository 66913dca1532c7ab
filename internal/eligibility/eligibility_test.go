package eligibility

import (
	"net/http"
	"testing"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
)

func TestAuthenticated(t *testing.T) {
	tests := []struct {
		name     string
		auth     string
		cookies  []*http.Cookie
		patterns []string
		want     bool
	}{
		{"no headers", "", nil, nil, false},
		{"bearer token", "Bearer x", nil, nil, true},
		{"exact cookie match", "", []*http.Cookie{{Name: "session"}}, []string{"session"}, true},
		{"prefix glob match", "", []*http.Cookie{{Name: "sess_abc"}}, []string{"sess_*"}, true},
		{"no pattern match", "", []*http.Cookie{{Name: "other"}}, []string{"session"}, false},
		{"case sensitive", "", []*http.Cookie{{Name: "Session"}}, []string{"session"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := RequestDecoded{Authorization: tt.auth, Cookies: tt.cookies}
			got := Authenticated(req, tt.patterns)
			if got != tt.want {
				t.Errorf("Authenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligible(t *testing.T) {
	base := config.DefaultFilter()

	t.Run("header phase, GET passes", func(t *testing.T) {
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, ResponseDecoded{}, false, base)
		if !ok || reason != OK {
			t.Fatalf("got (%v, %q), want (true, \"\")", ok, reason)
		}
	})

	t.Run("POST declines", func(t *testing.T) {
		ok, reason := Eligible(RequestDecoded{Method: "POST"}, ResponseDecoded{}, false, base)
		if ok || reason != ReasonMethod {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonMethod)
		}
	})

	t.Run("range request declines", func(t *testing.T) {
		ok, reason := Eligible(RequestDecoded{Method: "GET", HasRange: true}, ResponseDecoded{}, false, base)
		if ok || reason != ReasonRange {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonRange)
		}
	})

	t.Run("authenticated denied by policy", func(t *testing.T) {
		f := base
		f.AuthPolicy = config.AuthDeny
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, ResponseDecoded{}, true, f)
		if ok || reason != ReasonAuthenticated {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonAuthenticated)
		}
	})

	t.Run("non-200 status declines", func(t *testing.T) {
		resp := ResponseDecoded{Status: http.StatusNotFound, ContentType: "text/html"}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, base)
		if ok || reason != ReasonStatus {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonStatus)
		}
	})

	t.Run("content-range declines", func(t *testing.T) {
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html", HasContentRange: true}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, base)
		if ok || reason != ReasonRange {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonRange)
		}
	})

	t.Run("non-html content-type declines", func(t *testing.T) {
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "application/json"}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, base)
		if ok || reason != ReasonContentType {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonContentType)
		}
	})

	t.Run("stream_types exact match declines", func(t *testing.T) {
		f := base
		f.StreamTypes = []string{"text/html"}
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html"}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, f)
		if ok || reason != ReasonStreamType {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonStreamType)
		}
	})

	t.Run("unsupported encoding declines", func(t *testing.T) {
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html", ContentEncoding: "compress"}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, base)
		if ok || reason != ReasonEncoding {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonEncoding)
		}
	})

	t.Run("auto_decompress off declines any encoding", func(t *testing.T) {
		f := base
		f.AutoDecompress = false
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html", ContentEncoding: "gzip"}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, f)
		if ok || reason != ReasonEncoding {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonEncoding)
		}
	})

	t.Run("declared length over max_size declines", func(t *testing.T) {
		f := base
		f.MaxSize = 10
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html", ContentLength: 20}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, f)
		if ok || reason != ReasonTooLarge {
			t.Fatalf("got (%v, %q), want (false, %q)", ok, reason, ReasonTooLarge)
		}
	})

	t.Run("eligible html passes", func(t *testing.T) {
		resp := ResponseDecoded{Status: http.StatusOK, ContentType: "text/html", ContentLength: 10}
		ok, reason := Eligible(RequestDecoded{Method: "GET"}, resp, false, base)
		if !ok || reason != OK {
			t.Fatalf("got (%v, %q), want (true, \"\")", ok, reason)
		}
	})
}
