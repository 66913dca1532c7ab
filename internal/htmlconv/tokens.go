package htmlconv

import "unicode/utf8"

// EstimateTokens implements the Token Estimator's (C12) mandated
// heuristic: ceil(char_count / 4) over the final Markdown output,
// including any front matter (SPEC_FULL §5.1's resolution of the open
// question in spec.md §4.12/§9).
func EstimateTokens(markdown string) int {
	n := utf8.RuneCountInString(markdown)
	return (n + 3) / 4
}
