package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWork(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		notFound bool
		check   func(t *testing.T, w *Work)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{"message": {
				"abstract": "<jats:p>Deep <jats:italic>ocean</jats:italic>   currents.</jats:p>",
				"subject": ["Oceanography", "Climate"],
				"container-title": ["Nature Geoscience", "Alt Title"],
				"type": "journal-article"
			}}`,
			check: func(t *testing.T, w *Work) {
				assert.Equal(t, "Deep ocean currents.", w.CleanAbstract())
				assert.Equal(t, "Nature Geoscience", w.Journal())
				assert.Equal(t, []string{"Oceanography", "Climate"}, w.Subject)
			},
		},
		{
			name:     "not_found",
			status:   http.StatusNotFound,
			body:     `Resource not found.`,
			notFound: true,
		},
		{
			name:     "empty_message",
			status:   http.StatusOK,
			body:     `{"message": null}`,
			notFound: true,
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "internal"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/works/10.1000/test.1", r.URL.Path)
				assert.Equal(t, "storyscout/1.0 (mailto:test@example.org)", r.Header.Get("User-Agent"))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(
				WithBaseURL(srv.URL),
				WithUserAgent("storyscout/1.0 (mailto:test@example.org)"),
			)

			work, err := client.Work(context.Background(), "10.1000/test.1")

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
			require.NotNil(t, work)
			tt.check(t, work)
		})
	}
}

func TestWorkEscapesDOI(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/10.1553%2Fmoegg163s91", r.URL.RawPath)
		_, _ = w.Write([]byte(`{"message": {"container-title": ["MOeGG"]}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	work, err := client.Work(context.Background(), "10.1553/moegg163s91")
	require.NoError(t, err)
	assert.Equal(t, "MOeGG", work.Journal())
}

func TestCleanAbstractEmpty(t *testing.T) {
	t.Parallel()

	w := &Work{}
	assert.Empty(t, w.CleanAbstract())
	assert.Empty(t, w.Journal())
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": {}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Work(ctx, "10.1000/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}
