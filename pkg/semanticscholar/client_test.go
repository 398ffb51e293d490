package semanticscholar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaper(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  string
		notFound bool
		check    func(t *testing.T, p *Paper)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"title": "Alpine Permafrost",
				"abstract": "We study permafrost degradation.",
				"authors": [{"name": "A. Steiner"}],
				"year": 2023,
				"venue": "The Cryosphere",
				"citationCount": 12,
				"openAccessPdf": {"url": "https://example.org/p.pdf"},
				"tldr": {"text": "Permafrost is melting."}
			}`,
			check: func(t *testing.T, p *Paper) {
				assert.Equal(t, "We study permafrost degradation.", p.Summary())
				assert.Equal(t, "The Cryosphere", p.Venue)
				assert.Equal(t, "https://example.org/p.pdf", p.PDFLink())
			},
		},
		{
			name:   "tldr_fallback",
			status: http.StatusOK,
			body:   `{"title": "No Abstract", "tldr": {"text": "Short summary."}}`,
			check: func(t *testing.T, p *Paper) {
				assert.Equal(t, "Short summary.", p.Summary())
				assert.Empty(t, p.PDFLink())
			},
		},
		{
			name:     "not_found",
			status:   http.StatusNotFound,
			body:     `{"error": "Paper not found"}`,
			notFound: true,
		},
		{
			name:    "rate_limited",
			status:  http.StatusTooManyRequests,
			body:    `{"message": "Too Many Requests"}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/graph/v1/paper/DOI:10.1000/test.1", r.URL.Path)
				assert.Contains(t, r.URL.Query().Get("fields"), "tldr")

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))
			paper, err := client.Paper(context.Background(), "10.1000/test.1")

			if tt.notFound {
				require.ErrorIs(t, err, ErrNotFound)
				return
			}
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, paper)
			tt.check(t, paper)
		})
	}
}

func TestSummaryEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, (&Paper{}).Summary())
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Paper(ctx, "10.1000/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}
