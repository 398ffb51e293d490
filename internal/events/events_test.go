package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamOrderAndClose(t *testing.T) {
	t.Parallel()

	s := NewStream()
	go func() {
		s.Send(TypeInit, InitPayload{RunID: "r1", Total: 2})
		s.Send(TypePubStart, PubStartPayload{Index: 0, Total: 2, Title: "A"})
		s.Send(TypePubDone, PubDonePayload{Index: 0, Title: "A", FinalStatus: "enriched"})
		s.Send(TypeComplete, CompletePayload{Processed: 2, Total: 2})
		s.Close()
		s.Close() // idempotent
	}()

	got := Collect(s)
	require.Len(t, got, 4)
	assert.Equal(t, TypeInit, got[0].Type)
	assert.Equal(t, TypePubStart, got[1].Type)
	assert.Equal(t, TypePubDone, got[2].Type)
	assert.Equal(t, TypeComplete, got[3].Type)
}

func TestServeSSEWireFormat(t *testing.T) {
	t.Parallel()

	s := NewStream()
	go func() {
		s.Send(TypeInit, InitPayload{RunID: "run-1", Total: 3, Model: "m"})
		s.Send(TypeError, ErrorPayload{Message: "boom", Fatal: true})
		s.Close()
	}()

	rec := httptest.NewRecorder()
	err := ServeSSE(context.Background(), rec, s)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: init\ndata: {")
	assert.Contains(t, body, `"run_id":"run-1"`)
	assert.Contains(t, body, "event: error\ndata: ")
	assert.Contains(t, body, `"fatal":true`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestServeSSEClientDisconnect(t *testing.T) {
	t.Parallel()

	s := NewStream()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ServeSSE(ctx, httptest.NewRecorder(), s)
	assert.ErrorIs(t, err, context.Canceled)
}
