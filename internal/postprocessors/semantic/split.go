package semantic

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences splits text into trimmed sentences. A sentence ends at a run
// of '.', '!' or '?' (plus closing quotes or brackets) followed by whitespace
// or the end of text, or at a blank line. Decimal points such as "342.7" do
// not end a sentence.
func SplitSentences(text string) []string {
	var out []string
	start := 0

	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		switch {
		case r == '.' || r == '!' || r == '?':
			j := i + size
			for j < len(text) {
				next, n := utf8.DecodeRuneInString(text[j:])
				if !isTerminator(next) && !isCloser(next) {
					break
				}
				j += n
			}
			if j == len(text) {
				emit(j)
				return out
			}
			if next, _ := utf8.DecodeRuneInString(text[j:]); unicode.IsSpace(next) {
				emit(j)
			}
			i = j
			continue

		case r == '\n' && strings.HasPrefix(strings.TrimLeft(text[i+size:], " \t\r"), "\n"):
			emit(i)
		}

		i += size
	}

	emit(len(text))
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

// splitLong breaks a single oversized sentence into pieces of at most limit
// runes, preferring the last whitespace inside each window.
func splitLong(s string, limit int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for k := limit; k > limit/2; k-- {
			if unicode.IsSpace(runes[k]) {
				cut = k
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
