// Package openalex is a minimal client for the OpenAlex works API.
package openalex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.openalex.org"

// ErrNotFound is returned when OpenAlex has no record for a DOI.
var ErrNotFound = eris.New("openalex: work not found")

// Client looks up works by DOI.
type Client interface {
	Work(ctx context.Context, doi string) (*Work, error)
}

// Work is the subset of an OpenAlex work record used for enrichment.
type Work struct {
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Concepts              []Concept        `json:"concepts"`
	Topics                []Topic          `json:"topics"`
	PrimaryLocation       *Location        `json:"primary_location"`
	BestOALocation        *Location        `json:"best_oa_location"`
	HostVenue             *Venue           `json:"host_venue"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
}

// Concept is a tagged research concept with a confidence score.
type Concept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Topic is a classified research topic.
type Topic struct {
	DisplayName string `json:"display_name"`
}

// Location is a hosting location for a work.
type Location struct {
	Source *Venue `json:"source"`
	PDFURL string `json:"pdf_url"`
}

// Venue is a journal or repository.
type Venue struct {
	DisplayName string `json:"display_name"`
}

// AbstractText reconstructs the plain-text abstract from the inverted
// index form OpenAlex stores ({"word": [pos1, pos2], ...}).
func (w *Work) AbstractText() string {
	if len(w.AbstractInvertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var entries []posWord
	for word, positions := range w.AbstractInvertedIndex {
		for _, pos := range positions {
			entries = append(entries, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	words := make([]string, len(entries))
	for i, e := range entries {
		words[i] = e.word
	}
	return strings.Join(words, " ")
}

// Journal returns the display name of the primary location's source,
// falling back to the host venue.
func (w *Work) Journal() string {
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		return w.PrimaryLocation.Source.DisplayName
	}
	if w.HostVenue != nil {
		return w.HostVenue.DisplayName
	}
	return ""
}

// PDFLink returns the best open-access PDF URL, preferring the best OA
// location over the primary location.
func (w *Work) PDFLink() string {
	if w.BestOALocation != nil && w.BestOALocation.PDFURL != "" {
		return w.BestOALocation.PDFURL
	}
	if w.PrimaryLocation != nil {
		return w.PrimaryLocation.PDFURL
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

// WithUserAgent sets the polite-pool User-Agent header.
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

// NewClient creates an OpenAlex API client. No credentials are required.
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

func (c *httpClient) Work(ctx context.Context, doi string) (*Work, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works/doi:"+url.PathEscape(doi), nil)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("openalex: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var work Work
	if err := json.Unmarshal(body, &work); err != nil {
		return nil, eris.Wrap(err, "openalex: unmarshal response")
	}
	return &work, nil
}
