package resilience

import (
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "explicit_transient", err: NewTransientError(eris.New("overloaded"), 503), want: true},
		{name: "wrapped_transient", err: eris.Wrap(NewTransientError(eris.New("overloaded"), 503), "source: fetch"), want: true},
		{name: "conn_reset", err: syscall.ECONNRESET, want: true},
		{name: "conn_refused", err: syscall.ECONNREFUSED, want: true},
		{name: "status_429_text", err: eris.New("crossref: unexpected status 429: slow down"), want: true},
		{name: "status_503_text", err: eris.New("openalex: unexpected status 503: maintenance"), want: true},
		{name: "io_timeout_text", err: eris.New("read tcp: i/o timeout"), want: true},
		{name: "status_400", err: eris.New("crossref: unexpected status 400: bad"), want: false},
		{name: "permanent", err: eris.New("invalid DOI"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := eris.New("boom")
	te := NewTransientError(inner, 500)
	assert.Equal(t, "boom", te.Error())
	assert.Equal(t, inner, te.Unwrap())
	assert.Equal(t, 500, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 402, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
