package enrich

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("word%d", i+1)
	}
	return strings.Join(out, " ")
}

func TestExtractAbstractHeaderMatch(t *testing.T) {
	t.Parallel()

	body := words(150)
	text := "Some Title\nAuthor One, Author Two\n\nAbstract\n" + body + "\nIntroduction\nThe rest of the paper."

	got := ExtractAbstract(text)
	assert.Equal(t, body, got)
}

func TestExtractAbstractHeaderWithColonAndWrapping(t *testing.T) {
	t.Parallel()

	body := words(120)
	wrapped := strings.ReplaceAll(body, "word60 ", "word60\n")
	text := "Title\n\nABSTRACT: " + wrapped + "\n\nKeywords: alpha, beta"

	got := ExtractAbstract(text)
	assert.Equal(t, body, got)
}

func TestExtractAbstractSummaryHeader(t *testing.T) {
	t.Parallel()

	body := words(110)
	text := "Title\n\nSummary\n" + body + "\n1. Background of the study"

	got := ExtractAbstract(text)
	assert.Equal(t, body, got)
}

func TestExtractAbstractHeaderTooShortRejected(t *testing.T) {
	t.Parallel()

	text := "Title\n\nAbstract\nToo short.\nIntroduction\nBody."
	// Strategy 1 rejects the 10-char candidate and no affiliation markers
	// exist, so nothing is extracted.
	assert.Empty(t, ExtractAbstract(text))
}

func TestExtractAbstractAffiliationBoundary(t *testing.T) {
	t.Parallel()

	prose := "We report a detailed survey of glacier retreat. " + words(80) + ". These findings matter."
	text := "Glacier Retreat in the Alps\n" +
		"Institute of Geography, University of Innsbruck, Austria\n" +
		prose + "\n" +
		"Citation: Muster A (2024) Glacier Retreat. J Alp Res.\n" +
		"More body text follows here."

	got := ExtractAbstract(text)
	require.NotEmpty(t, got)
	assert.True(t, strings.HasPrefix(got, "We report a detailed survey"), "got: %q", got)
	assert.NotContains(t, got, "Citation:")
	assert.NotContains(t, got, "Austria")
}

func TestExtractAbstractFallbackCapsAtSentenceBoundary(t *testing.T) {
	t.Parallel()

	// No Abstract header, no Citation:/Introduction terminator. A long
	// prose block follows an email-marked affiliation line.
	sentence := "This sentence is repeated to build a very long prose block for the fallback path. "
	prose := strings.Repeat(sentence, 40) // ~3400 chars
	text := "A Preprint Title On The Dynamics Of Some Long-Running Process\n" +
		"Department of Computational Science, University of Vienna\n" +
		"Some Author, some.author@univie.ac.at\n" + prose

	got := ExtractAbstract(text)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), fallbackAbstractCap)
	assert.True(t, strings.HasSuffix(got, "."), "should end at a sentence boundary, got suffix %q", got[len(got)-10:])
	assert.True(t, strings.HasPrefix(got, "This sentence"), "got prefix: %q", got[:30])
}

func TestExtractAbstractFallbackRequiresUppercaseStart(t *testing.T) {
	t.Parallel()

	prose := "lowercase start but otherwise long enough prose. " + words(60) + ". And more."
	text := "A Fairly Long Title Describing The Work In Question\n" +
		"Institute for Example Studies, Example University\n" +
		"Author, author@example.org\n" + prose

	assert.Empty(t, ExtractAbstract(text))
}

func TestExtractAbstractNoMarkersAtAll(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ExtractAbstract("Just a plain page of text without any recognizable structure."))
	assert.Empty(t, ExtractAbstract(""))
}

func TestFindLastAffiliationEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "none", text: "no markers here", want: -1},
		{name: "country", text: "Institute, Vienna, Austria followed by prose", want: len("Institute, Vienna, Austria")},
		{name: "email", text: "Contact person@example.org then prose", want: len("Contact person@example.org")},
		{
			name: "last_of_several",
			text: "Lab A, Germany; Lab B, Austria; then the abstract",
			want: len("Lab A, Germany; Lab B, Austria"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, findLastAffiliationEnd(tt.text))
		})
	}
}
