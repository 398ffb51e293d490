package enrich

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/oeaw/storyscout/internal/config"
	"github.com/oeaw/storyscout/internal/ocr"
)

// snippetChars caps the stored full-text snippet.
const snippetChars = 2000

// PDFExtractor downloads a bounded PDF, extracts leading-page text and
// heuristically locates the abstract. It is the cascade's fallback source
// when the metadata APIs return no abstract.
type PDFExtractor struct {
	http      *http.Client
	extractor ocr.Extractor
	userAgent string
	maxBytes  int64
	maxPages  int
	minChars  int
}

// NewPDFExtractor creates a PDF extraction source.
func NewPDFExtractor(extractor ocr.Extractor, cfg config.PDFConfig, userAgent string) *PDFExtractor {
	return &PDFExtractor{
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
		extractor: extractor,
		userAgent: userAgent,
		maxBytes:  cfg.MaxBytes,
		maxPages:  cfg.MaxPages,
		minChars:  cfg.MinTextChars,
	}
}

func (p *PDFExtractor) Name() string { return SourcePDF }

// FetchURL downloads the document at url and extracts abstract, snippet
// and word count. It returns (nil, nil) when the URL does not yield a
// usable PDF: an HTML page (login or redirect target), an oversized
// document, or too little extractable text. Errors are reserved for
// transport failures.
func (p *PDFExtractor) FetchURL(ctx context.Context, url string) (*Fields, error) {
	if url == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create pdf request")
	}
	req.Header.Set("Accept", "application/pdf")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: download pdf %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	// Some URLs redirect to HTML login pages instead of the actual PDF.
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil, nil
	}
	if resp.ContentLength > p.maxBytes {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read pdf body %s", url)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, nil
	}

	tmp, err := os.CreateTemp("", "storyscout-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create temp pdf")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, eris.Wrap(err, "enrich: write temp pdf")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "enrich: close temp pdf")
	}

	text, err := p.extractor.ExtractText(ctx, tmp.Name(), p.maxPages)
	if err != nil {
		return nil, err
	}
	if len(text) < p.minChars {
		return nil, nil
	}

	// The abstract may be missing; snippet and word count alone still
	// count as a partial contribution.
	snippet := strings.TrimSpace(truncateRunes(text, snippetChars))
	return &Fields{
		Abstract:        ExtractAbstract(text),
		FullTextSnippet: snippet,
		WordCount:       wordCount(snippet),
	}, nil
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
