package enrich

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/oeaw/storyscout/internal/model"
)

// maxKeywords caps the persisted keyword list.
const maxKeywords = 20

// MergeState accumulates partial results across cascade phases. It is an
// immutable value: Apply returns a new state, leaving the receiver
// untouched, so each phase can be tested against a fixed input state.
type MergeState struct {
	abstract  string
	keywords  []string
	journal   string
	snippet   string
	wordCount int
	pdfURL    string
	sources   []string
}

// NewMergeState returns an empty accumulator. If csvAbstract is non-empty
// the state is seeded with it and "csv" counts as a contributing source;
// a seeded abstract is never overwritten by a later phase.
func NewMergeState(csvAbstract string) MergeState {
	s := MergeState{}
	if csvAbstract != "" {
		s.abstract = csvAbstract
		s.sources = []string{SourceCSV}
	}
	return s
}

// Apply merges one source's fields into the state under the cascade's
// precedence rules: abstract and journal are first-writer-wins, keywords
// are a deduplicated insertion-ordered union, the snippet is longest-wins,
// word count is max-wins, and the discovered PDF URL is first-writer-wins.
func (s MergeState) Apply(source string, f *Fields) MergeState {
	if f == nil {
		return s
	}

	next := s.clone()
	if !containsString(next.sources, source) {
		next.sources = append(next.sources, source)
	}

	if next.abstract == "" && f.Abstract != "" {
		next.abstract = f.Abstract
	}
	for _, kw := range f.Keywords {
		if kw == "" {
			continue
		}
		kw = norm.NFC.String(kw)
		if !containsString(next.keywords, kw) {
			next.keywords = append(next.keywords, kw)
		}
	}
	if next.journal == "" && f.Journal != "" {
		next.journal = f.Journal
	}
	if len(f.FullTextSnippet) > len(next.snippet) {
		next.snippet = f.FullTextSnippet
	}
	if f.WordCount > next.wordCount {
		next.wordCount = f.WordCount
	}
	if next.pdfURL == "" && f.PDFURL != "" {
		next.pdfURL = f.PDFURL
	}

	return next
}

func (s MergeState) clone() MergeState {
	next := s
	next.keywords = append([]string(nil), s.keywords...)
	next.sources = append([]string(nil), s.sources...)
	return next
}

// HasAbstract reports whether any phase (or the CSV seed) produced an
// abstract. PDF fallback phases use this as their skip condition.
func (s MergeState) HasAbstract() bool {
	return s.abstract != ""
}

// DiscoveredPDFURL returns the first PDF URL any API source reported.
func (s MergeState) DiscoveredPDFURL() string {
	return s.pdfURL
}

// Sources returns the contributing source names in cascade order.
func (s MergeState) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Status derives the terminal enrichment status: enriched iff an abstract
// was found, partial iff any source contributed without one, failed
// otherwise.
func (s MergeState) Status() model.EnrichmentStatus {
	switch {
	case s.abstract != "":
		return model.EnrichmentEnriched
	case len(s.sources) > 0:
		return model.EnrichmentPartial
	default:
		return model.EnrichmentFailed
	}
}

// Finalize collapses the state into the per-record write.
func (s MergeState) Finalize() model.EnrichmentUpdate {
	u := model.EnrichmentUpdate{
		Status:    s.Status(),
		WordCount: s.wordCount,
	}
	if s.abstract != "" {
		u.Abstract = ptr(s.abstract)
	}
	if len(s.keywords) > 0 {
		kws := s.keywords
		if len(kws) > maxKeywords {
			kws = kws[:maxKeywords]
		}
		u.Keywords = append([]string(nil), kws...)
	}
	if s.journal != "" {
		u.Journal = ptr(s.journal)
	}
	if len(s.sources) > 0 {
		u.Source = ptr(strings.Join(s.sources, "+"))
	}
	if s.snippet != "" {
		u.FullTextSnippet = ptr(s.snippet)
	}
	return u
}

func ptr[T any](v T) *T {
	return &v
}
