package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oeaw/storyscout/internal/config"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/model"
)

type stubSource struct {
	name   string
	fields *Fields
	err    error
	calls  int
	gotDOI string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, doi string) (*Fields, error) {
	s.calls++
	s.gotDOI = doi
	return s.fields, s.err
}

type stubStore struct {
	updates map[string]model.EnrichmentUpdate
	err     error
}

func (s *stubStore) UpdateEnrichment(_ context.Context, id string, u model.EnrichmentUpdate) error {
	if s.updates == nil {
		s.updates = make(map[string]model.EnrichmentUpdate)
	}
	s.updates[id] = u
	return s.err
}

func fastEnrichConfig() config.EnrichConfig {
	return config.EnrichConfig{
		SourceTimeoutSecs: 5,
		SourceCallsPerSec: 10000,
		RecordsPerSec:     10000,
	}
}

func runCascade(t *testing.T, c *Cascade, pubs []model.Publication) []events.Event {
	t.Helper()
	stream := events.NewStream()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(context.Background(), pubs, stream)
	}()
	evs := events.Collect(stream)
	<-done
	return evs
}

func eventsOfType(evs []events.Event, typ events.Type) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func sourceOutcomes(t *testing.T, evs []events.Event) map[string]events.SourceStatus {
	t.Helper()
	out := make(map[string]events.SourceStatus)
	for _, ev := range eventsOfType(evs, events.TypeSourceDone) {
		p, ok := ev.Payload.(events.SourcePayload)
		require.True(t, ok)
		out[p.Source] = p.Status
	}
	return out
}

func doiPub(id, title, doi string) model.Publication {
	return model.Publication{ID: id, Title: title, DOI: &doi}
}

func TestCascadeMergesSourcesInOrder(t *testing.T) {
	crossref := &stubSource{name: SourceCrossRef, fields: &Fields{
		Abstract:        "First abstract wins and stays.",
		Keywords:        []string{"glaciers", "climate"},
		FullTextSnippet: "First abstract wins and stays.",
		WordCount:       5,
	}}
	openalex := &stubSource{name: SourceOpenAlex, fields: &Fields{
		Abstract: "A later abstract that must not replace the first.",
		Keywords: []string{"climate", "alps"},
		Journal:  "Journal of Alpine Research",
	}}
	unpaywall := &stubSource{name: SourceUnpaywall, err: errors.New("upstream broke")}
	semantic := &stubSource{name: SourceSemanticScholar, fields: &Fields{
		FullTextSnippet: "A much longer snippet that should win over the short crossref one.",
		WordCount:       12,
	}}

	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(), []Source{crossref, openalex, unpaywall}, []Source{semantic}, nil, store)

	pubs := []model.Publication{doiPub("p1", "Alpine Glaciers", "10.1234/alps")}
	evs := runCascade(t, c, pubs)

	require.Contains(t, store.updates, "p1")
	u := store.updates["p1"]
	assert.Equal(t, model.EnrichmentEnriched, u.Status)
	require.NotNil(t, u.Abstract)
	assert.Equal(t, "First abstract wins and stays.", *u.Abstract)
	assert.Equal(t, []string{"glaciers", "climate", "alps"}, u.Keywords)
	require.NotNil(t, u.Journal)
	assert.Equal(t, "Journal of Alpine Research", *u.Journal)
	require.NotNil(t, u.Source)
	assert.Equal(t, "crossref+openalex+semantic_scholar", *u.Source)
	require.NotNil(t, u.FullTextSnippet)
	assert.Contains(t, *u.FullTextSnippet, "much longer snippet")
	assert.Equal(t, 12, u.WordCount)

	// A failing source is reported but never aborts the record.
	outcomes := sourceOutcomes(t, evs)
	assert.Equal(t, events.SourceSuccess, outcomes[SourceCrossRef])
	assert.Equal(t, events.SourceSuccess, outcomes[SourceOpenAlex])
	assert.Equal(t, events.SourceError, outcomes[SourceUnpaywall])
	assert.Equal(t, events.SourceSuccess, outcomes[SourceSemanticScholar])

	// Each source got the cleaned identifier exactly once.
	assert.Equal(t, 1, crossref.calls)
	assert.Equal(t, "10.1234/alps", crossref.gotDOI)

	completes := eventsOfType(evs, events.TypeComplete)
	require.Len(t, completes, 1)
	cp := completes[0].Payload.(events.CompletePayload)
	assert.Equal(t, 1, cp.Processed)
	assert.Equal(t, 1, cp.Successful)
	assert.Equal(t, 0, cp.Failed)
	assert.Equal(t, 1, cp.Sources[SourceCrossRef])
	assert.Equal(t, 1, cp.Sources[SourceSemanticScholar])
}

func TestCascadeEventOrderPerRecord(t *testing.T) {
	crossref := &stubSource{name: SourceCrossRef, fields: &Fields{Abstract: "An abstract."}}
	openalex := &stubSource{name: SourceOpenAlex}
	unpaywall := &stubSource{name: SourceUnpaywall}
	semantic := &stubSource{name: SourceSemanticScholar}

	c := NewCascade(fastEnrichConfig(), []Source{crossref, openalex, unpaywall}, []Source{semantic}, nil, &stubStore{})
	evs := runCascade(t, c, []model.Publication{doiPub("p1", "T", "10.1/x")})

	var types []events.Type
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.Type{
		events.TypePubStart,
		events.TypeSourceTry, events.TypeSourceDone, // crossref
		events.TypeSourceTry, events.TypeSourceDone, // openalex
		events.TypeSourceTry, events.TypeSourceDone, // unpaywall
		events.TypeSourceTry, events.TypeSourceDone, // semantic scholar
		events.TypePubDone,
		events.TypeComplete,
	}, types)
}

func TestCascadeSkipsOwnPDFOnceAbstractFound(t *testing.T) {
	var pdfHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pdfHits++
		w.Write([]byte("%PDF-1.4 payload"))
	}))
	defer srv.Close()

	crossref := &stubSource{name: SourceCrossRef, fields: &Fields{Abstract: "Found early, so no PDF download happens."}}
	empty := func(name string) *stubSource { return &stubSource{name: name} }

	pdf := NewPDFExtractor(&stubExtractor{text: "should never run"}, pdfTestConfig(), "test-agent")
	c := NewCascade(fastEnrichConfig(),
		[]Source{crossref, empty(SourceOpenAlex), empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, pdf, &stubStore{})

	url := srv.URL + "/paper.pdf"
	pub := doiPub("p1", "T", "10.1/x")
	pub.URL = &url
	evs := runCascade(t, c, []model.Publication{pub})

	assert.Zero(t, pdfHits)
	_, sawPDF := sourceOutcomes(t, evs)[SourcePDF]
	assert.False(t, sawPDF)
}

func TestCascadeDirectPDFFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 payload"))
	}))
	defer srv.Close()

	text := "Abstract\n" + strings.Repeat("Glacier retreat accelerates under warming. ", 6) + "\nIntroduction\nBody."
	pdf := NewPDFExtractor(&stubExtractor{text: text}, pdfTestConfig(), "test-agent")

	empty := func(name string) *stubSource { return &stubSource{name: name} }
	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(),
		[]Source{empty(SourceCrossRef), empty(SourceOpenAlex), empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, pdf, store)

	url := srv.URL + "/paper.pdf"
	pub := doiPub("p1", "T", "10.1/x")
	pub.URL = &url
	evs := runCascade(t, c, []model.Publication{pub})

	u := store.updates["p1"]
	assert.Equal(t, model.EnrichmentEnriched, u.Status)
	require.NotNil(t, u.Source)
	assert.Equal(t, "pdf", *u.Source)
	assert.Equal(t, events.SourceSuccess, sourceOutcomes(t, evs)[SourcePDF])
}

func TestCascadeDiscoveredPDFFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 payload"))
	}))
	defer srv.Close()

	openalex := &stubSource{name: SourceOpenAlex, fields: &Fields{
		Journal: "Somewhere",
		PDFURL:  srv.URL + "/oa.pdf",
	}}
	empty := func(name string) *stubSource { return &stubSource{name: name} }

	text := "Abstract\n" + strings.Repeat("Permafrost thaw releases stored carbon. ", 6) + "\nIntroduction\nBody."
	pdf := NewPDFExtractor(&stubExtractor{text: text}, pdfTestConfig(), "test-agent")
	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(),
		[]Source{empty(SourceCrossRef), openalex, empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, pdf, store)

	evs := runCascade(t, c, []model.Publication{doiPub("p1", "T", "10.1/x")})

	u := store.updates["p1"]
	assert.Equal(t, model.EnrichmentEnriched, u.Status)
	require.NotNil(t, u.Source)
	assert.Equal(t, "openalex+pdf", *u.Source)
	// No direct PDF was attempted earlier, so the fallback reports itself.
	assert.Equal(t, events.SourceSuccess, sourceOutcomes(t, evs)[SourcePDF])
}

func TestCascadeNoDOISkipsAPISources(t *testing.T) {
	abstract := "Seeded from the import file."
	pub := model.Publication{ID: "p1", Title: "No Identifier", Abstract: &abstract}

	empty := func(name string) *stubSource { return &stubSource{name: name} }
	pre := []Source{empty(SourceCrossRef), empty(SourceOpenAlex), empty(SourceUnpaywall)}
	post := []Source{empty(SourceSemanticScholar)}
	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(), pre, post, nil, store)

	evs := runCascade(t, c, []model.Publication{pub})

	outcomes := sourceOutcomes(t, evs)
	for _, name := range []string{SourceCrossRef, SourceOpenAlex, SourceUnpaywall, SourceSemanticScholar, SourcePDF} {
		assert.Equal(t, events.SourceSkipped, outcomes[name], name)
	}
	for _, src := range pre {
		assert.Zero(t, src.(*stubSource).calls)
	}

	u := store.updates["p1"]
	assert.Equal(t, model.EnrichmentEnriched, u.Status)
	require.NotNil(t, u.Source)
	assert.Equal(t, "csv", *u.Source)
}

func TestCascadeInvalidDOIYieldsNoData(t *testing.T) {
	crossref := &stubSource{name: SourceCrossRef, fields: &Fields{Abstract: "never used"}}
	empty := func(name string) *stubSource { return &stubSource{name: name} }
	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(),
		[]Source{crossref, empty(SourceOpenAlex), empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, nil, store)

	evs := runCascade(t, c, []model.Publication{doiPub("p1", "T", "not-a-doi")})

	assert.Zero(t, crossref.calls)
	assert.Equal(t, events.SourceNoData, sourceOutcomes(t, evs)[SourceCrossRef])
	assert.Equal(t, model.EnrichmentFailed, store.updates["p1"].Status)
}

func TestCascadePartialStatusWithoutAbstract(t *testing.T) {
	openalex := &stubSource{name: SourceOpenAlex, fields: &Fields{Journal: "Somewhere", Keywords: []string{"x"}}}
	empty := func(name string) *stubSource { return &stubSource{name: name} }
	store := &stubStore{}
	c := NewCascade(fastEnrichConfig(),
		[]Source{empty(SourceCrossRef), openalex, empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, nil, store)

	evs := runCascade(t, c, []model.Publication{doiPub("p1", "T", "10.1/x")})

	assert.Equal(t, model.EnrichmentPartial, store.updates["p1"].Status)
	cp := eventsOfType(evs, events.TypeComplete)[0].Payload.(events.CompletePayload)
	require.NotNil(t, cp.Partial)
	assert.Equal(t, 1, *cp.Partial)
	assert.Equal(t, 0, cp.Successful)
}

func TestCascadeStoreFailureEmitsErrorAndContinues(t *testing.T) {
	empty := func(name string) *stubSource { return &stubSource{name: name} }
	store := &stubStore{err: errors.New("disk full")}
	c := NewCascade(fastEnrichConfig(),
		[]Source{empty(SourceCrossRef), empty(SourceOpenAlex), empty(SourceUnpaywall)},
		[]Source{empty(SourceSemanticScholar)}, nil, store)

	evs := runCascade(t, c, []model.Publication{
		doiPub("p1", "A", "10.1/a"),
		doiPub("p2", "B", "10.1/b"),
	})

	errs := eventsOfType(evs, events.TypeError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Payload.(events.ErrorPayload).Message, "disk full")
	assert.False(t, errs[0].Payload.(events.ErrorPayload).Fatal)

	cp := eventsOfType(evs, events.TypeComplete)[0].Payload.(events.CompletePayload)
	assert.Equal(t, 2, cp.Processed)
}

func TestCascadeCancelledBeforeStart(t *testing.T) {
	crossref := &stubSource{name: SourceCrossRef, fields: &Fields{Abstract: "unused"}}
	c := NewCascade(fastEnrichConfig(), []Source{crossref}, nil, nil, &stubStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := events.NewStream()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, []model.Publication{doiPub("p1", "T", "10.1/x")}, stream)
	}()
	evs := events.Collect(stream)
	<-done

	assert.Zero(t, crossref.calls)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeComplete, evs[0].Type)
	cp := evs[0].Payload.(events.CompletePayload)
	assert.Equal(t, 0, cp.Processed)
	assert.Equal(t, 1, cp.Total)
}

func TestPreviewTruncatesAbstractAndKeywords(t *testing.T) {
	f := &Fields{
		Abstract: strings.Repeat("a", 200),
		Keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"},
		Journal:  "J",
	}
	p := preview(f)
	assert.Len(t, p.Abstract, previewChars+3)
	assert.True(t, strings.HasSuffix(p.Abstract, "..."))
	assert.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, p.Keywords)
	assert.Equal(t, "J", p.Journal)
}
