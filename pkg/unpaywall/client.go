// Package unpaywall is a minimal client for the Unpaywall v2 API.
package unpaywall

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.unpaywall.org"

// ErrNotFound is returned when Unpaywall has no record for a DOI.
var ErrNotFound = eris.New("unpaywall: record not found")

// Client looks up open-access records by DOI. Unpaywall requires a
// contact email on every request.
type Client interface {
	Lookup(ctx context.Context, doi string) (*Record, error)
}

// Record is the subset of an Unpaywall record used for enrichment.
type Record struct {
	IsOA           bool        `json:"is_oa"`
	OAStatus       string      `json:"oa_status"`
	JournalName    string      `json:"journal_name"`
	BestOALocation *OALocation `json:"best_oa_location"`
}

// OALocation describes where an open-access copy is hosted.
type OALocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
}

// PDFLink returns the best open-access link, preferring a direct PDF URL
// over the landing page. Empty when the record is not open access.
func (r *Record) PDFLink() string {
	if !r.IsOA || r.BestOALocation == nil {
		return ""
	}
	if r.BestOALocation.URLForPDF != "" {
		return r.BestOALocation.URLForPDF
	}
	return r.BestOALocation.URL
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	email   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Unpaywall API client identified by a contact email.
func NewClient(email string, opts ...Option) Client {
	c := &httpClient{
		email:   email,
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

func (c *httpClient) Lookup(ctx context.Context, doi string) (*Record, error) {
	u := c.baseURL + "/v2/" + url.PathEscape(doi) + "?email=" + url.QueryEscape(c.email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "unpaywall: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "unpaywall: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "unpaywall: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unpaywall: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, eris.Wrap(err, "unpaywall: unmarshal response")
	}
	return &rec, nil
}
