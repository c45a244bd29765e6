package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExcerptShortContentPassesThrough(t *testing.T) {
	assert.Equal(t, "hello", Excerpt("hello"))
	assert.Equal(t, "hello", Excerpt("  hello  "))
	assert.Equal(t, "", Excerpt("   "))
}

func TestExcerptTakesFirstTwoSentences(t *testing.T) {
	in := "First sentence. Second one! Third should be dropped."
	assert.Equal(t, "First sentence. Second one!", Excerpt(in))
}

func TestExcerptKeepsAbbreviationsIntact(t *testing.T) {
	// A dot followed by a non-space does not end a sentence.
	in := "Version 1.5 shipped today. It fixes the parser. And more."
	assert.Equal(t, "Version 1.5 shipped today. It fixes the parser.", Excerpt(in))
}

func TestExcerptWordBoundaryTruncation(t *testing.T) {
	in := strings.Repeat("lattice ", 60) // 480 chars, no sentence breaks
	out := Excerpt(in)

	assert.LessOrEqual(t, utf8.RuneCountInString(out), maxExcerptChars)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.True(t, strings.HasSuffix(strings.TrimSuffix(out, "…"), "lattice"),
		"must cut between words, not inside one")
}

func TestExcerptHardTruncation(t *testing.T) {
	in := strings.Repeat("x", 400)
	out := Excerpt(in)

	assert.Equal(t, maxExcerptChars, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestExcerptBudgetBoundary(t *testing.T) {
	exact := strings.Repeat("a", 280)
	assert.Equal(t, exact, Excerpt(exact), "280 chars pass untouched")

	over := strings.Repeat("a", 281)
	assert.NotEqual(t, over, Excerpt(over))
	assert.LessOrEqual(t, utf8.RuneCountInString(Excerpt(over)), maxExcerptChars)
}

func TestExcerptIdempotent(t *testing.T) {
	cases := []string{
		"hello",
		"First sentence. Second one! Third should be dropped.",
		strings.Repeat("lattice ", 60),
		strings.Repeat("x", 400),
		"One opener that runs long. " + strings.Repeat("word ", 80),
		"Ends mid abbreviation v2. " + strings.Repeat("etc. filler ", 40),
		strings.Repeat("a", 281),
	}
	for i, c := range cases {
		once := Excerpt(c)
		assert.Equal(t, once, Excerpt(once), "case %d is not a fixed point", i)
	}
}

func TestExtractHashtags(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"#go at the start", []string{"go"}},
		{"plain text", nil},
		{"mixing #Go and #go dedupes", []string{"go"}},
		{"#one two #two_2 three", []string{"one", "two_2"}},
		{"no match in#side a word", nil},
		{"c# is not a tag, #csharp is", []string{"csharp"}},
		{"adjacent #a #b #a", []string{"a", "b"}},
		{"tab\t#indent and newline\n#line", []string{"indent", "line"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractHashtags(tc.in), tc.in)
	}
}
