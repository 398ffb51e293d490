package events

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
)

// WriteSSE renders one event in the text/event-stream wire format.
func WriteSSE(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return eris.Wrap(err, "events: marshal payload")
	}
	if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
		return eris.Wrap(err, "events: write frame")
	}
	return nil
}

// ServeSSE sets stream headers and forwards events to the client until the
// stream closes or the client disconnects. It returns the context error on
// disconnect so callers can cancel the producing run.
func ServeSSE(ctx context.Context, w http.ResponseWriter, s *Stream) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return eris.New("events: response writer does not support flushing")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, open := <-s.Events():
			if !open {
				return nil
			}
			if err := WriteSSE(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
