package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t  ", 0},
		{"four chars", "abcd", 1},
		{"five chars rounds up", "abcde", 2},
		{"collapses whitespace", "a    b\n\nc", 2}, // "a b c" = 5 chars
		{"trims ends", "  abcd  ", 1},
		{"400 normalized chars", strings.Repeat("abcd", 100), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateTokensStable(t *testing.T) {
	// Texts with identical normalized form estimate identically.
	a := EstimateTokens("hello   world")
	b := EstimateTokens(" hello world ")
	assert.Equal(t, a, b)
}
