package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount_EmptyText(t *testing.T) {
	tok := New(EncodingApprox)

	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 0, tok.Count("   "))
	assert.Equal(t, 0, tok.Count("\n\t"))
}

func TestCount_Deterministic(t *testing.T) {
	tok := New("")
	assert.Equal(t, EncodingApprox, tok.Encoding())

	text := "The quick brown fox jumps over the lazy dog"
	first := tok.Count(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, tok.Count(text))
	}
}

func TestCount_Values(t *testing.T) {
	tok := New(EncodingApprox)

	tests := []struct {
		text string
		want int
	}{
		{"a", 1},
		{"word", 1},
		{"words", 2},           // 5 chars -> two groups of four
		{"is a", 2},            // two short words
		{"Tricare is a", 4},    // 2 + 1 + 1
		{"hello world", 4},     // 2 + 2
		{"antidisestablish", 4}, // 16 chars
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.Count(tt.text), "text %q", tt.text)
	}
}

func TestCount_NeverNegative(t *testing.T) {
	tok := New(EncodingApprox)
	for _, text := range []string{"", " ", "x", strings.Repeat("y", 1000), "multi word input"} {
		assert.GreaterOrEqual(t, tok.Count(text), 0)
	}
}

// Splitting text into fragments can cut a character group in two but never
// merge groups, so the sum of per-fragment counts is always >= the count of
// the full concatenation, with equality when no group spans a boundary.
func TestCount_FragmentBoundaryProperty(t *testing.T) {
	tok := New(EncodingApprox)

	tests := []struct {
		name      string
		fragments []string
		spanning  bool // a token group spans a fragment boundary
	}{
		{"split at whitespace", []string{"hello ", "world again"}, false},
		{"split mid word", []string{"Tri", "care ", "is a"}, true},
		{"single fragment", []string{"just one fragment"}, false},
		{"every rune its own fragment", []string{"s", "p", "l", "i", "t"}, true},
		{"long unspaced run split", []string{strings.Repeat("a", 10), strings.Repeat("a", 10)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := 0
			for _, f := range tt.fragments {
				sum += tok.Count(f)
			}
			full := tok.Count(strings.Join(tt.fragments, ""))

			assert.GreaterOrEqual(t, sum, full)
			if !tt.spanning {
				assert.Equal(t, full, sum)
			}
		})
	}
}
