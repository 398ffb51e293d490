// Package events provides the ordered progress event stream emitted by
// long-running enrichment and scoring runs.
package events

import "sync"

// Type discriminates progress events.
type Type string

const (
	TypeInit       Type = "init"
	TypeProgress   Type = "progress"
	TypeSourceTry  Type = "source_try"
	TypeSourceDone Type = "source_done"
	TypePubStart   Type = "pub_start"
	TypePubDone    Type = "pub_done"
	TypeError      Type = "error"
	TypeComplete   Type = "complete"
)

// SourceStatus is the per-source outcome reported in source_done events.
type SourceStatus string

const (
	SourceLoading SourceStatus = "loading"
	SourceSuccess SourceStatus = "success"
	SourceNoData  SourceStatus = "no_data"
	SourceError   SourceStatus = "error"
	SourceSkipped SourceStatus = "skipped"
)

// Event is one entry in a run's progress stream. Payload is a JSON-taggable
// struct specific to the event type.
type Event struct {
	Type    Type
	Payload any
}

// BudgetSnapshot reports the spend constraints known at run start.
type BudgetSnapshot struct {
	LimitRemaining  *float64 `json:"limit_remaining"`
	Usage           float64  `json:"usage"`
	Limit           *float64 `json:"limit"`
	AccountBalance  *float64 `json:"account_balance"`
	EffectiveBudget *float64 `json:"effective_budget"`
}

// InitPayload opens a scoring run stream.
type InitPayload struct {
	RunID          string          `json:"run_id"`
	Total          int             `json:"total"`
	Model          string          `json:"model"`
	CredentialHint string          `json:"credential_hint"`
	Budget         *BudgetSnapshot `json:"budget,omitempty"`
}

// ProgressPayload reports scoring progress between sub-batches.
type ProgressPayload struct {
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	CurrentTitle string  `json:"current_title,omitempty"`
	TokensUsed   int     `json:"tokens_used"`
	Cost         float64 `json:"cost"`
}

// PubStartPayload opens one record's enrichment.
type PubStartPayload struct {
	Index          int     `json:"index"`
	Total          int     `json:"total"`
	Title          string  `json:"title"`
	DOI            *string `json:"doi"`
	NoDOI          bool    `json:"no_doi"`
	HasCSVAbstract bool    `json:"has_csv_abstract"`
}

// SourcePayload reports one source attempt or outcome within a record.
type SourcePayload struct {
	Index  int           `json:"index"`
	Source string        `json:"source"`
	Status SourceStatus  `json:"status"`
	Found  *SourcePreview `json:"found,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// SourcePreview carries a truncated glimpse of what a source contributed.
type SourcePreview struct {
	Abstract string   `json:"abstract,omitempty"`
	Journal  string   `json:"journal,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// PubDonePayload closes one record's enrichment.
type PubDonePayload struct {
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	FinalStatus string   `json:"final_status"`
	SourcesUsed []string `json:"sources_used"`
	HasAbstract bool     `json:"has_abstract"`
}

// ErrorPayload reports an item or run failure. Fatal errors end the run.
type ErrorPayload struct {
	Message    string `json:"message"`
	Fatal      bool   `json:"fatal,omitempty"`
	BatchStart *int   `json:"batch_start,omitempty"`
}

// CompletePayload closes the stream with final counters. Consumers trust
// these over any running totals of their own.
type CompletePayload struct {
	Processed    int            `json:"processed"`
	Total        int            `json:"total"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	Partial      *int           `json:"partial,omitempty"`
	WithAbstract *int           `json:"with_abstract,omitempty"`
	Sources      map[string]int `json:"sources,omitempty"`
	TokensUsed   *int           `json:"tokens_used,omitempty"`
	Cost         *float64       `json:"cost,omitempty"`
}

// Stream is a single-producer, single-consumer ordered event channel.
// The producer calls Send and finally Close; the consumer ranges over
// Events until closure.
type Stream struct {
	ch        chan Event
	closeOnce sync.Once
}

// defaultBuffer is sized so a run never blocks on a draining consumer
// under normal consumption.
const defaultBuffer = 64

// NewStream creates a buffered event stream.
func NewStream() *Stream {
	return &Stream{ch: make(chan Event, defaultBuffer)}
}

// Send emits one event in order. It must only be called by the producing
// goroutine and never after Close.
func (s *Stream) Send(t Type, payload any) {
	s.ch <- Event{Type: t, Payload: payload}
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Collect drains the stream into a slice. Intended for tests and CLI
// consumers that process events after the run goroutine finishes.
func Collect(s *Stream) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}
