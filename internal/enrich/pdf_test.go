package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oeaw/storyscout/internal/config"
)

// stubExtractor returns canned text instead of shelling out to pdftotext.
type stubExtractor struct {
	text     string
	err      error
	maxPages int
}

func (s *stubExtractor) ExtractText(_ context.Context, _ string, maxPages int) (string, error) {
	s.maxPages = maxPages
	return s.text, s.err
}

func pdfTestConfig() config.PDFConfig {
	return config.PDFConfig{
		MaxBytes:     10 * 1024 * 1024,
		MaxPages:     3,
		TimeoutSecs:  15,
		MinTextChars: 50,
	}
}

func TestPDFFetchURLSuccess(t *testing.T) {
	pageText := "Title\nAuthors\n\nAbstract\n" + words(150) + "\nIntroduction\nBody follows."

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		assert.Equal(t, "storyscout/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	stub := &stubExtractor{text: pageText}
	p := NewPDFExtractor(stub, pdfTestConfig(), "storyscout/1.0")

	f, err := p.FetchURL(context.Background(), srv.URL+"/paper.pdf")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, words(150), f.Abstract)
	assert.NotEmpty(t, f.FullTextSnippet)
	assert.LessOrEqual(t, len(f.FullTextSnippet), snippetChars)
	assert.Positive(t, f.WordCount)
	assert.Equal(t, 3, stub.maxPages)
}

func TestPDFFetchURLNoAbstractStillPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	stub := &stubExtractor{text: "Plain page text without structure but long enough to pass the minimum gate."}
	p := NewPDFExtractor(stub, pdfTestConfig(), "")

	f, err := p.FetchURL(context.Background(), srv.URL+"/paper.pdf")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Empty(t, f.Abstract)
	assert.NotEmpty(t, f.FullTextSnippet)
	assert.Positive(t, f.WordCount)
}

func TestPDFFetchURLRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer srv.Close()

	p := NewPDFExtractor(&stubExtractor{}, pdfTestConfig(), "")
	f, err := p.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestPDFFetchURLRejectsOversizedBody(t *testing.T) {
	big := strings.Repeat("x", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(big))
	}))
	defer srv.Close()

	cfg := pdfTestConfig()
	cfg.MaxBytes = 32
	p := NewPDFExtractor(&stubExtractor{}, cfg, "")

	f, err := p.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestPDFFetchURLRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPDFExtractor(&stubExtractor{}, pdfTestConfig(), "")
	f, err := p.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestPDFFetchURLRejectsShortText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	p := NewPDFExtractor(&stubExtractor{text: "too little"}, pdfTestConfig(), "")
	f, err := p.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestPDFFetchURLExtractorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	p := NewPDFExtractor(&stubExtractor{err: eris.New("ocr: pdftotext failed")}, pdfTestConfig(), "")
	_, err := p.FetchURL(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestPDFFetchURLTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // closed before the request

	p := NewPDFExtractor(&stubExtractor{}, pdfTestConfig(), "")
	_, err := p.FetchURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download pdf")
}

func TestPDFFetchURLEmptyURL(t *testing.T) {
	p := NewPDFExtractor(&stubExtractor{}, pdfTestConfig(), "")
	f, err := p.FetchURL(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestTruncateRunesKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	s := "grüße" // ü and ß are two bytes each
	assert.Equal(t, "grüße", truncateRunes(s, 10))
	assert.Equal(t, "gr", truncateRunes(s, 3))
	assert.Equal(t, "grü", truncateRunes(s, 4))
}
