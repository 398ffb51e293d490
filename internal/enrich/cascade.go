package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oeaw/storyscout/internal/config"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/model"
	"github.com/oeaw/storyscout/internal/resilience"
)

// previewChars caps abstract text echoed into source_done events.
const previewChars = 120

// Updater persists per-record enrichment results.
type Updater interface {
	UpdateEnrichment(ctx context.Context, id string, u model.EnrichmentUpdate) error
}

// Cascade runs the ordered multi-source enrichment for a batch of
// publications, one record at a time.
type Cascade struct {
	preSources  []Source
	postSources []Source
	pdf         *PDFExtractor
	store       Updater

	sourceTimeout time.Duration
	callLimiter   *rate.Limiter
	recLimiter    *rate.Limiter
	retry         resilience.RetryConfig
}

// NewCascade assembles the cascade. The pre sources run first in order
// for every DOI record; post sources run after the direct-PDF fallback.
func NewCascade(cfg config.EnrichConfig, pre, post []Source, pdf *PDFExtractor, store Updater) *Cascade {
	return &Cascade{
		preSources:    pre,
		postSources:   post,
		pdf:           pdf,
		store:         store,
		sourceTimeout: time.Duration(cfg.SourceTimeoutSecs) * time.Second,
		callLimiter:   rate.NewLimiter(rate.Limit(cfg.SourceCallsPerSec), 1),
		recLimiter:    rate.NewLimiter(rate.Limit(cfg.RecordsPerSec), 1),
		retry:         resilience.DefaultRetryConfig(),
	}
}

// runCounters accumulates the totals reported by the complete event.
type runCounters struct {
	processed    int
	successful   int
	partial      int
	failed       int
	withAbstract int
	sources      map[string]int
}

func (c *runCounters) record(state MergeState) model.EnrichmentStatus {
	status := state.Status()
	switch status {
	case model.EnrichmentEnriched:
		c.successful++
		c.withAbstract++
	case model.EnrichmentPartial:
		c.partial++
	default:
		c.failed++
	}
	for _, src := range state.Sources() {
		c.sources[src]++
	}
	c.processed++
	return status
}

// Run enriches pubs sequentially, emitting progress events, persisting
// each record's result, and closing the stream with a complete event.
// Cancellation stops before the next record; finished records stay
// persisted.
func (c *Cascade) Run(ctx context.Context, pubs []model.Publication, stream *events.Stream) {
	defer stream.Close()

	counters := runCounters{sources: make(map[string]int)}

	for i := range pubs {
		if ctx.Err() != nil {
			break
		}
		pub := &pubs[i]

		stream.Send(events.TypePubStart, events.PubStartPayload{
			Index:          i,
			Total:          len(pubs),
			Title:          pub.Title,
			DOI:            pub.DOI,
			NoDOI:          !pub.HasDOI(),
			HasCSVAbstract: pub.HasCSVAbstract(),
		})

		var state MergeState
		if pub.HasDOI() {
			state = c.enrichWithDOI(ctx, i, pub, stream)
		} else {
			state = c.enrichWithoutDOI(ctx, i, pub, stream)
		}

		status := counters.record(state)
		c.persist(ctx, pub, state, stream)

		stream.Send(events.TypePubDone, events.PubDonePayload{
			Index:       i,
			Title:       pub.Title,
			FinalStatus: string(status),
			SourcesUsed: state.Sources(),
			HasAbstract: state.HasAbstract(),
		})

		if err := c.recLimiter.Wait(ctx); err != nil {
			break
		}
	}

	stream.Send(events.TypeComplete, events.CompletePayload{
		Processed:    counters.processed,
		Total:        len(pubs),
		Successful:   counters.successful,
		Failed:       counters.failed,
		Partial:      &counters.partial,
		WithAbstract: &counters.withAbstract,
		Sources:      counters.sources,
	})
}

// enrichWithoutDOI handles records with no identifier: the four metadata
// APIs are skipped; a CSV abstract and a direct PDF URL are all there is.
func (c *Cascade) enrichWithoutDOI(ctx context.Context, idx int, pub *model.Publication, stream *events.Stream) MergeState {
	for _, group := range [][]Source{c.preSources, c.postSources} {
		for _, src := range group {
			stream.Send(events.TypeSourceDone, events.SourcePayload{
				Index: idx, Source: src.Name(), Status: events.SourceSkipped,
			})
		}
	}

	state := NewMergeState(csvAbstract(pub))

	if pub.URL != nil && IsPDFURL(*pub.URL) {
		state = c.tryPDF(ctx, idx, *pub.URL, state, stream, true)
	} else {
		stream.Send(events.TypeSourceDone, events.SourcePayload{
			Index: idx, Source: SourcePDF, Status: events.SourceSkipped,
		})
	}

	return state
}

// enrichWithDOI runs the full cascade. Phase 1 (CrossRef, OpenAlex,
// Unpaywall) always runs in full since those sources contribute keywords
// and journal beyond the abstract; the PDF phases and nothing else are
// abstract-gated.
func (c *Cascade) enrichWithDOI(ctx context.Context, idx int, pub *model.Publication, stream *events.Stream) MergeState {
	doi := CleanDOI(*pub.DOI)
	state := NewMergeState(csvAbstract(pub))

	directPDF := pub.URL != nil && IsPDFURL(*pub.URL)

	// Phase 1: metadata APIs in fixed order.
	for _, src := range c.preSources {
		state = c.trySource(ctx, idx, src, doi, state, stream)
	}

	// Phase 2: the record's own PDF, only while the abstract is missing.
	if !state.HasAbstract() && directPDF {
		state = c.tryPDF(ctx, idx, *pub.URL, state, stream, true)
	}

	// Phase 3: Semantic Scholar, slowest source last.
	for _, src := range c.postSources {
		state = c.trySource(ctx, idx, src, doi, state, stream)
	}

	// Phase 4: an API-discovered PDF as a last resort. Events are only
	// emitted when phase 2 did not already report a pdf attempt.
	discovered := state.DiscoveredPDFURL()
	if !state.HasAbstract() && discovered != "" && (pub.URL == nil || discovered != *pub.URL) {
		state = c.tryPDF(ctx, idx, discovered, state, stream, !directPDF)
	}

	return state
}

func (c *Cascade) trySource(ctx context.Context, idx int, src Source, doi string, state MergeState, stream *events.Stream) MergeState {
	stream.Send(events.TypeSourceTry, events.SourcePayload{
		Index: idx, Source: src.Name(), Status: events.SourceLoading,
	})

	if doi == "" {
		stream.Send(events.TypeSourceDone, events.SourcePayload{
			Index: idx, Source: src.Name(), Status: events.SourceNoData,
		})
		return state
	}

	fields, err := resilience.DoVal(ctx, c.withRetryLog(src.Name()), func(ctx context.Context) (*Fields, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.sourceTimeout)
		defer cancel()
		return src.Fetch(callCtx, doi)
	})

	switch {
	case err != nil:
		zap.L().Warn("source lookup failed",
			zap.String("source", src.Name()),
			zap.String("doi", doi),
			zap.Error(err),
		)
		stream.Send(events.TypeSourceDone, events.SourcePayload{
			Index: idx, Source: src.Name(), Status: events.SourceError, Error: err.Error(),
		})
	case fields == nil:
		stream.Send(events.TypeSourceDone, events.SourcePayload{
			Index: idx, Source: src.Name(), Status: events.SourceNoData,
		})
	default:
		state = state.Apply(src.Name(), fields)
		stream.Send(events.TypeSourceDone, events.SourcePayload{
			Index: idx, Source: src.Name(), Status: events.SourceSuccess,
			Found: preview(fields),
		})
	}

	_ = c.callLimiter.Wait(ctx)
	return state
}

func (c *Cascade) tryPDF(ctx context.Context, idx int, url string, state MergeState, stream *events.Stream, emit bool) MergeState {
	if emit {
		stream.Send(events.TypeSourceTry, events.SourcePayload{
			Index: idx, Source: SourcePDF, Status: events.SourceLoading,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.sourceTimeout)
	fields, err := c.pdf.FetchURL(callCtx, url)
	cancel()

	switch {
	case err != nil:
		zap.L().Warn("pdf extraction failed", zap.String("url", url), zap.Error(err))
		if emit {
			stream.Send(events.TypeSourceDone, events.SourcePayload{
				Index: idx, Source: SourcePDF, Status: events.SourceError, Error: err.Error(),
			})
		}
	case fields == nil:
		if emit {
			stream.Send(events.TypeSourceDone, events.SourcePayload{
				Index: idx, Source: SourcePDF, Status: events.SourceNoData,
			})
		}
	default:
		state = state.Apply(SourcePDF, fields)
		if emit {
			stream.Send(events.TypeSourceDone, events.SourcePayload{
				Index: idx, Source: SourcePDF, Status: events.SourceSuccess,
				Found: preview(fields),
			})
		}
	}

	return state
}

func (c *Cascade) persist(ctx context.Context, pub *model.Publication, state MergeState, stream *events.Stream) {
	if err := c.store.UpdateEnrichment(ctx, pub.ID, state.Finalize()); err != nil {
		zap.L().Error("persist enrichment failed",
			zap.String("publication_id", pub.ID),
			zap.Error(err),
		)
		stream.Send(events.TypeError, events.ErrorPayload{
			Message: "failed to save result for \"" + pub.Title + "\": " + err.Error(),
		})
	}
}

func (c *Cascade) withRetryLog(source string) resilience.RetryConfig {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger(source, "fetch")
	return cfg
}

func csvAbstract(pub *model.Publication) string {
	if pub.Abstract != nil {
		return *pub.Abstract
	}
	return ""
}

func preview(f *Fields) *events.SourcePreview {
	p := &events.SourcePreview{Journal: f.Journal}
	if f.Abstract != "" {
		p.Abstract = truncateEllipsis(f.Abstract, previewChars)
	}
	if len(f.Keywords) > 5 {
		p.Keywords = f.Keywords[:5]
	} else {
		p.Keywords = f.Keywords
	}
	return p
}

func truncateEllipsis(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return truncateRunes(s, max) + "..."
}
