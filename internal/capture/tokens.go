package capture

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses runs of whitespace to single spaces and trims the
// ends.
func NormalizeText(text string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
}

// EstimateTokens approximates a model's token count as one token per four
// characters of normalized text. It is stable for identical normalized text
// but does not match any real tokenizer.
func EstimateTokens(text string) int {
	normalized := NormalizeText(text)
	if normalized == "" {
		return 0
	}
	n := utf8.RuneCountInString(normalized)
	return (n + 3) / 4
}
