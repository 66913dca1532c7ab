package negotiate

import "testing"

func TestWants(t *testing.T) {
	tests := []struct {
		name       string
		accept     string
		onWildcard bool
		want       bool
	}{
		{"exact markdown", "text/markdown", false, true},
		{"exact html", "text/html", false, false},
		{"empty header", "", false, false},
		{"markdown with q", "text/markdown;q=0.8", false, true},
		{"markdown q=0 excluded", "text/markdown;q=0", false, false},
		{"wildcard off", "*/*", false, false},
		{"wildcard on", "*/*", true, true},
		{"text wildcard on", "text/*", true, true},
		{"text wildcard off", "text/*", false, false},
		{"html beats markdown at lower q", "text/html, text/markdown;q=0.5", false, false},
		{"markdown beats html at higher q", "text/markdown;q=0.9, text/html;q=0.5", false, true},
		{"equal q tie prefers first: html first", "text/html, text/markdown", false, false},
		{"equal q tie prefers first: markdown first", "text/markdown, text/html", false, true},
		{"multiple ranges picks markdown", "image/png, text/markdown, text/html;q=0.5", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wants(tt.accept, tt.onWildcard)
			if got != tt.want {
				t.Errorf("Wants(%q, %v) = %v, want %v", tt.accept, tt.onWildcard, got, tt.want)
			}
		})
	}
}
