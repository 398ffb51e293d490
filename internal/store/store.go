package store

import (
	"context"

	"github.com/oeaw/storyscout/internal/model"
)

// EnrichmentFilter selects publications eligible for an enrichment run.
// Records with a DOI are listed first; no-DOI records follow only when
// IncludeNoDOI is set and they carry a .pdf URL or a seeded abstract.
type EnrichmentFilter struct {
	Limit          int  `json:"limit,omitempty"`
	IncludePartial bool `json:"include_partial,omitempty"`
	IncludeNoDOI   bool `json:"include_no_doi,omitempty"`
}

// Statuses returns the enrichment statuses the filter admits.
func (f EnrichmentFilter) Statuses() []string {
	if f.IncludePartial {
		return []string{string(model.EnrichmentPending), string(model.EnrichmentPartial)}
	}
	return []string{string(model.EnrichmentPending)}
}

// AnalysisFilter selects publications eligible for a scoring run.
type AnalysisFilter struct {
	Limit          int  `json:"limit,omitempty"`
	MinWordCount   int  `json:"min_word_count,omitempty"`
	ForceReanalyze bool `json:"force_reanalyze,omitempty"`
	EnrichedOnly   bool `json:"enriched_only,omitempty"`
	IncludePartial bool `json:"include_partial,omitempty"`
}

// EnrichmentStatuses returns the enrichment statuses the filter admits,
// or nil when it does not constrain enrichment state.
func (f AnalysisFilter) EnrichmentStatuses() []string {
	if !f.EnrichedOnly {
		return nil
	}
	if f.IncludePartial {
		return []string{string(model.EnrichmentEnriched), string(model.EnrichmentPartial)}
	}
	return []string{string(model.EnrichmentEnriched)}
}

// Store is the persistence interface shared by the SQLite and Postgres
// backends.
type Store interface {
	// Runs read eligible records, then write per-record results back.
	ListForEnrichment(ctx context.Context, filter EnrichmentFilter) ([]model.Publication, error)
	ListForAnalysis(ctx context.Context, filter AnalysisFilter) ([]model.Publication, error)
	UpdateEnrichment(ctx context.Context, id string, u model.EnrichmentUpdate) error
	UpdateAnalysis(ctx context.Context, id string, u model.AnalysisUpdate) error

	// Reads for export and reporting.
	ListScored(ctx context.Context) ([]model.Publication, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// Run-size ceilings. Enrichment tolerates bigger batches than scoring
// because it spends no model tokens.
const (
	maxEnrichmentLimit = 500
	maxAnalysisLimit   = 100
)

// clampLimit applies the run-size default and ceiling shared by both
// backends.
func clampLimit(limit, max int) int {
	if limit <= 0 {
		limit = 20
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
