// Package crossref is a minimal client for the CrossRef REST API.
package crossref

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"context"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.crossref.org"

// ErrNotFound is returned when CrossRef has no record for a DOI.
var ErrNotFound = eris.New("crossref: work not found")

// Client looks up works by DOI.
type Client interface {
	Work(ctx context.Context, doi string) (*Work, error)
}

// Work is the subset of a CrossRef work record used for enrichment.
// Abstract is raw JATS XML as delivered by the API.
type Work struct {
	Abstract       string   `json:"abstract"`
	Subject        []string `json:"subject"`
	ContainerTitle []string `json:"container-title"`
	Type           string   `json:"type"`
	URL            string   `json:"URL"`
}

type envelope struct {
	Message *Work `json:"message"`
}

var (
	jatsTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanAbstract strips JATS markup tags and collapses whitespace runs.
func (w *Work) CleanAbstract() string {
	s := jatsTagRe.ReplaceAllString(w.Abstract, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Journal returns the first container title, if any.
func (w *Work) Journal() string {
	if len(w.ContainerTitle) > 0 {
		return w.ContainerTitle[0]
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

// NewClient creates a CrossRef API client. No credentials are required.
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
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works/"+url.PathEscape(doi), nil)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("crossref: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "crossref: unmarshal response")
	}
	if env.Message == nil {
		return nil, ErrNotFound
	}
	return env.Message, nil
}
