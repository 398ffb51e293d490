// Package openrouter is a client for the OpenRouter chat completions and
// account endpoints.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "anthropic/claude-sonnet-4"
)

// Client performs chat completions and key introspection against the
// OpenRouter API.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	Key(ctx context.Context) (*KeyInfo, error)
	Credits(ctx context.Context) (*Credits, error)
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat constrains the completion output shape.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// KeyInfo is the response from GET /auth/key. Limits are nil when the key
// is unlimited.
type KeyInfo struct {
	LimitRemaining *float64 `json:"limit_remaining"`
	Usage          float64  `json:"usage"`
	Limit          *float64 `json:"limit"`
}

// Credits is the response from GET /credits.
type Credits struct {
	TotalCredits float64 `json:"total_credits"`
	TotalUsage   float64 `json:"total_usage"`
}

// Balance returns the remaining account balance.
func (c *Credits) Balance() float64 {
	return c.TotalCredits - c.TotalUsage
}

// APIError is a non-2xx response from OpenRouter other than a credit
// shortfall.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: api error %d: %s", e.StatusCode, e.Body)
}

// InsufficientCreditsError is a 402 response. When OpenRouter reports the
// completion budget it can still afford, AffordableTokens carries that
// number; when even the prompt exceeds the remaining credits,
// PromptTooLarge is set and no retry can help.
type InsufficientCreditsError struct {
	AffordableTokens int
	PromptTooLarge   bool
	Body             string
}

func (e *InsufficientCreditsError) Error() string {
	return "openrouter: api error 402: " + e.Body
}

var affordableRe = regexp.MustCompile(`can only afford (\d+)`)

func newInsufficientCreditsError(body string) *InsufficientCreditsError {
	e := &InsufficientCreditsError{Body: body}
	if strings.Contains(body, "Prompt tokens limit exceeded") {
		e.PromptTooLarge = true
		return e
	}
	if m := affordableRe.FindStringSubmatch(body); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			e.AffordableTokens = n
		}
	}
	return e
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithReferer sets the HTTP-Referer and X-Title attribution headers.
func WithReferer(referer, title string) Option {
	return func(c *httpClient) {
		c.referer = referer
		c.title = title
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	referer string
	title   string
	http    *http.Client
}

// NewClient creates an OpenRouter API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
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

func (c *httpClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: read response")
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, newInsufficientCreditsError(string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "openrouter: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) Key(ctx context.Context) (*KeyInfo, error) {
	var info KeyInfo
	if err := c.getData(ctx, "/auth/key", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) Credits(ctx context.Context) (*Credits, error) {
	var credits Credits
	if err := c.getData(ctx, "/credits", &credits); err != nil {
		return nil, err
	}
	return &credits, nil
}

func (c *httpClient) getData(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrapf(err, "openrouter: create %s request", path)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "openrouter: send %s request", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "openrouter: read %s response", path)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrapf(err, "openrouter: unmarshal %s response", path)
	}
	if env.Data == nil {
		return eris.Errorf("openrouter: %s response missing data", path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return eris.Wrapf(err, "openrouter: unmarshal %s data", path)
	}
	return nil
}
