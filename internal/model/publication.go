// Package model defines the publication record and its enrichment/analysis state.
package model

import "time"

// EnrichmentStatus tracks how far metadata enrichment got for a publication.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentEnriched EnrichmentStatus = "enriched"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

// AnalysisStatus tracks whether a publication has been scored.
type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending"
	AnalysisAnalyzed AnalysisStatus = "analyzed"
	AnalysisFailed   AnalysisStatus = "failed"
)

// Publication is one bibliographic record. The store owns it; runs read a
// snapshot, compute a result, and write it back.
type Publication struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Authors         *string `json:"authors"`
	Abstract        *string `json:"abstract"` // CSV-seeded, lowest precedence
	DOI             *string `json:"doi"`
	URL             *string `json:"url"`
	PublishedAt     *string `json:"published_at"`
	PublicationType *string `json:"publication_type"`
	Institute       *string `json:"institute"`
	OpenAccess      bool    `json:"open_access"`
	OAType          *string `json:"oa_type"`
	Citation        *string `json:"citation"`
	CSVUID          *string `json:"csv_uid"`
	ImportBatch     *string `json:"import_batch"`

	// Enrichment result.
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	EnrichedAbstract *string          `json:"enriched_abstract"`
	EnrichedKeywords []string         `json:"enriched_keywords"`
	EnrichedJournal  *string          `json:"enriched_journal"`
	EnrichedSource   *string          `json:"enriched_source"` // "+"-joined source names
	FullTextSnippet  *string          `json:"full_text_snippet"`
	WordCount        int              `json:"word_count"`

	// Analysis result.
	AnalysisStatus        AnalysisStatus `json:"analysis_status"`
	PressScore            *float64       `json:"press_score"`
	PublicAccessibility   *float64       `json:"public_accessibility"`
	SocietalRelevance     *float64       `json:"societal_relevance"`
	NoveltyFactor         *float64       `json:"novelty_factor"`
	StorytellingPotential *float64       `json:"storytelling_potential"`
	MediaTimeliness       *float64       `json:"media_timeliness"`
	PitchSuggestion       *string        `json:"pitch_suggestion"`
	TargetAudience        *string        `json:"target_audience"`
	SuggestedAngle        *string        `json:"suggested_angle"`
	Reasoning             *string        `json:"reasoning"`
	LLMModel              *string        `json:"llm_model"`
	AnalysisCost          *float64       `json:"analysis_cost"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDOI reports whether the record carries a non-empty DOI.
func (p *Publication) HasDOI() bool {
	return p.DOI != nil && *p.DOI != ""
}

// HasCSVAbstract reports whether an abstract was seeded at import time.
func (p *Publication) HasCSVAbstract() bool {
	return p.Abstract != nil && *p.Abstract != ""
}

// BestContent returns the richest text available for prompting: the enriched
// abstract, then the CSV abstract, then the citation.
func (p *Publication) BestContent() string {
	if p.EnrichedAbstract != nil && *p.EnrichedAbstract != "" {
		return *p.EnrichedAbstract
	}
	if p.Abstract != nil && *p.Abstract != "" {
		return *p.Abstract
	}
	if p.Citation != nil {
		return *p.Citation
	}
	return ""
}

// EnrichmentUpdate is the per-record write produced by an enrichment run.
type EnrichmentUpdate struct {
	Status          EnrichmentStatus
	Abstract        *string
	Keywords        []string
	Journal         *string
	Source          *string
	FullTextSnippet *string
	WordCount       int
}

// AnalysisUpdate is the per-record write produced by a scoring run.
type AnalysisUpdate struct {
	Status                AnalysisStatus
	PressScore            float64
	PublicAccessibility   float64
	SocietalRelevance     float64
	NoveltyFactor         float64
	StorytellingPotential float64
	MediaTimeliness       float64
	PitchSuggestion       string
	TargetAudience        string
	SuggestedAngle        string
	Reasoning             string
	LLMModel              string
	AnalysisCost          float64
}

// Stats summarizes the state of the publication table.
type Stats struct {
	Total          int      `json:"total"`
	Enriched       int      `json:"enriched"`
	Analyzed       int      `json:"analyzed"`
	AvgScore       *float64 `json:"avg_score"`
	HighScoreCount int      `json:"high_score_count"` // press_score >= 0.7
}
