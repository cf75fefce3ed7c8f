package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple",
			text: "First one. Second one! Third one?",
			want: []string{"First one.", "Second one!", "Third one?"},
		},
		{
			name: "decimal is not a boundary",
			text: "Revenue was $342.7M in 2024. Costs were flat.",
			want: []string{"Revenue was $342.7M in 2024.", "Costs were flat."},
		},
		{
			name: "no terminator",
			text: "  a heading without punctuation  ",
			want: []string{"a heading without punctuation"},
		},
		{
			name: "blank line ends a sentence",
			text: "Heading\n\nBody text follows.",
			want: []string{"Heading", "Body text follows."},
		},
		{
			name: "single newline does not",
			text: "wrapped\nline here.",
			want: []string{"wrapped\nline here."},
		},
		{
			name: "closing quote stays with sentence",
			text: `He said "stop." Then left.`,
			want: []string{`He said "stop."`, "Then left."},
		},
		{
			name: "ellipsis and repeated marks",
			text: "Wait... What?! Fine.",
			want: []string{"Wait...", "What?!", "Fine."},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestSplitLong(t *testing.T) {
	assert.Equal(t, []string{"aaaa", "bbbb", "cc"}, splitLong("aaaabbbbcc", 4))
	assert.Equal(t, []string{"one two", "three"}, splitLong("one two three", 8))
}
