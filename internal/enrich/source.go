package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oeaw/storyscout/pkg/crossref"
	"github.com/oeaw/storyscout/pkg/openalex"
	"github.com/oeaw/storyscout/pkg/semanticscholar"
	"github.com/oeaw/storyscout/pkg/unpaywall"
)

// Source names as they appear in enriched_source and progress events.
const (
	SourceCSV             = "csv"
	SourceCrossRef        = "crossref"
	SourceOpenAlex        = "openalex"
	SourceUnpaywall       = "unpaywall"
	SourceSemanticScholar = "semantic_scholar"
	SourcePDF             = "pdf"
)

// Fields is the partial result bag one source contributes. Any subset of
// fields may be set.
type Fields struct {
	Abstract        string
	Keywords        []string
	Journal         string
	PDFURL          string
	FullTextSnippet string
	WordCount       int
	PublishedAt     string
}

// IsEmpty reports whether the source contributed nothing usable.
func (f *Fields) IsEmpty() bool {
	return f.Abstract == "" && len(f.Keywords) == 0 && f.Journal == "" &&
		f.PDFURL == "" && f.FullTextSnippet == "" && f.WordCount == 0 &&
		f.PublishedAt == ""
}

// Source is one metadata provider in the cascade. Fetch returns (nil, nil)
// when the provider has no usable data for the DOI; errors are reserved
// for transport-level failures.
type Source interface {
	Name() string
	Fetch(ctx context.Context, doi string) (*Fields, error)
}

func wordCount(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// CrossRefSource enriches from the CrossRef works API.
type CrossRefSource struct {
	client crossref.Client
}

// NewCrossRefSource wraps a CrossRef client as a cascade source.
func NewCrossRefSource(client crossref.Client) *CrossRefSource {
	return &CrossRefSource{client: client}
}

func (s *CrossRefSource) Name() string { return SourceCrossRef }

func (s *CrossRefSource) Fetch(ctx context.Context, doi string) (*Fields, error) {
	work, err := s.client.Work(ctx, doi)
	if err != nil {
		if errors.Is(err, crossref.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	abstract := work.CleanAbstract()
	f := &Fields{
		Abstract:        abstract,
		Keywords:        work.Subject,
		Journal:         work.Journal(),
		FullTextSnippet: abstract,
		WordCount:       wordCount(abstract),
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

// OpenAlexSource enriches from the OpenAlex works API.
type OpenAlexSource struct {
	client openalex.Client
}

// NewOpenAlexSource wraps an OpenAlex client as a cascade source.
func NewOpenAlexSource(client openalex.Client) *OpenAlexSource {
	return &OpenAlexSource{client: client}
}

func (s *OpenAlexSource) Name() string { return SourceOpenAlex }

// Concepts below this confidence score are noise.
const openAlexConceptFloor = 0.3

// Only the leading topics carry signal.
const openAlexTopicCap = 5

func (s *OpenAlexSource) Fetch(ctx context.Context, doi string) (*Fields, error) {
	work, err := s.client.Work(ctx, doi)
	if err != nil {
		if errors.Is(err, openalex.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	abstract := work.AbstractText()
	// Very short reconstructions are index noise, not abstracts.
	if len(abstract) <= 20 {
		abstract = ""
	}

	var keywords []string
	for _, c := range work.Concepts {
		if c.DisplayName != "" && c.Score > openAlexConceptFloor {
			keywords = append(keywords, c.DisplayName)
		}
	}
	topics := work.Topics
	if len(topics) > openAlexTopicCap {
		topics = topics[:openAlexTopicCap]
	}
	for _, topic := range topics {
		if topic.DisplayName != "" && !containsString(keywords, topic.DisplayName) {
			keywords = append(keywords, topic.DisplayName)
		}
	}

	pdfURL := work.PDFLink()
	snippet := abstract
	if pdfURL != "" && snippet != "" {
		snippet = snippet + "\n\nOpen access PDF: " + pdfURL
	}

	publishedAt := ""
	if isFullDate(work.PublicationDate) {
		publishedAt = work.PublicationDate
	} else if work.PublicationYear > 0 {
		publishedAt = yearToDate(work.PublicationYear)
	}

	f := &Fields{
		Abstract:        abstract,
		Keywords:        keywords,
		Journal:         work.Journal(),
		PDFURL:          pdfURL,
		FullTextSnippet: snippet,
		WordCount:       wordCount(abstract),
		PublishedAt:     publishedAt,
	}
	if abstract == "" && f.Journal == "" && len(keywords) == 0 {
		return nil, nil
	}
	return f, nil
}

// UnpaywallSource enriches from the Unpaywall open-access API. It only
// reports anything for open-access records and its quirk is deriving a
// usable OA PDF link.
type UnpaywallSource struct {
	client unpaywall.Client
}

// NewUnpaywallSource wraps an Unpaywall client as a cascade source.
func NewUnpaywallSource(client unpaywall.Client) *UnpaywallSource {
	return &UnpaywallSource{client: client}
}

func (s *UnpaywallSource) Name() string { return SourceUnpaywall }

func (s *UnpaywallSource) Fetch(ctx context.Context, doi string) (*Fields, error) {
	rec, err := s.client.Lookup(ctx, doi)
	if err != nil {
		if errors.Is(err, unpaywall.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !rec.IsOA {
		return nil, nil
	}

	f := &Fields{Journal: rec.JournalName}
	if link := rec.PDFLink(); link != "" {
		f.PDFURL = link
		f.FullTextSnippet = "Open access PDF available: " + link
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

// SemanticScholarSource enriches from the Semantic Scholar graph API,
// falling back to the machine-generated tldr when no abstract exists.
type SemanticScholarSource struct {
	client semanticscholar.Client
}

// NewSemanticScholarSource wraps a Semantic Scholar client as a cascade
// source.
func NewSemanticScholarSource(client semanticscholar.Client) *SemanticScholarSource {
	return &SemanticScholarSource{client: client}
}

func (s *SemanticScholarSource) Name() string { return SourceSemanticScholar }

func (s *SemanticScholarSource) Fetch(ctx context.Context, doi string) (*Fields, error) {
	paper, err := s.client.Paper(ctx, doi)
	if err != nil {
		if errors.Is(err, semanticscholar.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	summary := paper.Summary()
	pdfURL := paper.PDFLink()
	snippet := summary
	if pdfURL != "" && snippet != "" {
		snippet = snippet + "\n\nOpen access PDF: " + pdfURL
	}

	f := &Fields{
		Abstract:        paper.Abstract,
		Journal:         paper.Venue,
		PDFURL:          pdfURL,
		FullTextSnippet: snippet,
		WordCount:       wordCount(summary),
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isFullDate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func yearToDate(year int) string {
	return fmt.Sprintf("%04d-01-01", year)
}
