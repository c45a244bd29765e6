package content

import (
	"strings"
	"unicode"
)

// maxExcerptChars bounds a synthesised excerpt, ellipsis included. Keeping
// the ellipsis inside the budget is what makes Excerpt a fixed point.
const maxExcerptChars = 280

const ellipsis = '…'

// Excerpt synthesises a preview from post content: the first two sentences
// when they fit the budget, otherwise a word-boundary truncation, otherwise
// a hard cut. The ellipsis is appended only on truncation.
// Excerpt(Excerpt(c)) == Excerpt(c) for all c.
func Excerpt(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) == 0 {
		return ""
	}

	lead := runes[:sentenceEnd(runes, 2)]
	if len(lead) <= maxExcerptChars {
		return string(lead)
	}
	return truncateExcerpt(runes)
}

// sentenceEnd returns the index just past the n-th sentence boundary, or
// len(runes) when fewer boundaries exist. A boundary is '.', '!' or '?'
// followed by whitespace or the end of the text; '…' never terminates, so
// a previously truncated excerpt re-reads as a single trailing sentence.
func sentenceEnd(runes []rune, n int) int {
	seen := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		seen++
		if seen == n {
			return i + 1
		}
	}
	return len(runes)
}

func truncateExcerpt(runes []rune) string {
	cut := runes[:maxExcerptChars-1]

	boundary := -1
	for i, r := range cut {
		if unicode.IsSpace(r) {
			boundary = i
		}
	}
	if boundary > 0 {
		cut = cut[:boundary]
	}

	text := strings.TrimRightFunc(string(cut), unicode.IsSpace)
	return text + string(ellipsis)
}
