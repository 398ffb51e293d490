// Package semanticscholar is a minimal client for the Semantic Scholar
// Academic Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.semanticscholar.org"

	// paperFields selects the record subset requested on every lookup.
	paperFields = "title,abstract,authors,year,openAccessPdf,citationCount,venue,tldr"
)

// ErrNotFound is returned when Semantic Scholar has no record for a DOI.
var ErrNotFound = eris.New("semanticscholar: paper not found")

// Client looks up papers by DOI.
type Client interface {
	Paper(ctx context.Context, doi string) (*Paper, error)
}

// Paper is the subset of a Semantic Scholar paper record used for
// enrichment.
type Paper struct {
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract"`
	Authors       []Author       `json:"authors"`
	Year          int            `json:"year"`
	Venue         string         `json:"venue"`
	CitationCount int            `json:"citationCount"`
	OpenAccessPdf *OpenAccessPdf `json:"openAccessPdf"`
	Tldr          *Tldr          `json:"tldr"`
}

// Author is a paper author.
type Author struct {
	Name string `json:"name"`
}

// OpenAccessPdf points at a freely available PDF.
type OpenAccessPdf struct {
	URL string `json:"url"`
}

// Tldr is the machine-generated one-sentence summary.
type Tldr struct {
	Text string `json:"text"`
}

// Summary returns the abstract, falling back to the tldr text.
func (p *Paper) Summary() string {
	if p.Abstract != "" {
		return p.Abstract
	}
	if p.Tldr != nil {
		return p.Tldr.Text
	}
	return ""
}

// PDFLink returns the open-access PDF URL, if any.
func (p *Paper) PDFLink() string {
	if p.OpenAccessPdf != nil {
		return p.OpenAccessPdf.URL
	}
	return ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a Semantic Scholar API client. The public tier needs
// no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Paper(ctx context.Context, doi string) (*Paper, error) {
	u := c.baseURL + "/graph/v1/paper/DOI:" + url.PathEscape(doi) + "?fields=" + url.QueryEscape(paperFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("semanticscholar: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var paper Paper
	if err := json.Unmarshal(body, &paper); err != nil {
		return nil, eris.Wrap(err, "semanticscholar: unmarshal response")
	}
	return &paper, nil
}
