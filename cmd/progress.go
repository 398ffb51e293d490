package main

import (
	"fmt"
	"io"

	"github.com/oeaw/storyscout/internal/events"
)

// printEvents renders a run's event stream as terminal progress lines and
// returns the final counters, if the run got far enough to emit them.
func printEvents(w io.Writer, s *events.Stream) *events.CompletePayload {
	var complete *events.CompletePayload

	for ev := range s.Events() {
		switch p := ev.Payload.(type) {
		case events.InitPayload:
			fmt.Fprintf(w, "run %s: scoring %d publications with %s (key %s)\n",
				p.RunID, p.Total, p.Model, p.CredentialHint)
			if p.Budget != nil && p.Budget.EffectiveBudget != nil {
				fmt.Fprintf(w, "  budget: $%.4f available\n", *p.Budget.EffectiveBudget)
			}
		case events.PubStartPayload:
			doi := "no DOI"
			if p.DOI != nil {
				doi = *p.DOI
			}
			fmt.Fprintf(w, "[%d/%d] %s (%s)\n", p.Index+1, p.Total, p.Title, doi)
		case events.SourcePayload:
			if ev.Type != events.TypeSourceDone {
				continue
			}
			line := fmt.Sprintf("  %s: %s", p.Source, p.Status)
			if p.Error != "" {
				line += " (" + p.Error + ")"
			}
			fmt.Fprintln(w, line)
		case events.PubDonePayload:
			fmt.Fprintf(w, "  -> %s\n", p.FinalStatus)
		case events.ProgressPayload:
			fmt.Fprintf(w, "[%d/%d] scoring %q ($%.4f spent)\n",
				p.Processed, p.Total, p.CurrentTitle, p.Cost)
		case events.ErrorPayload:
			label := "error"
			if p.Fatal {
				label = "fatal"
			}
			fmt.Fprintf(w, "  %s: %s\n", label, p.Message)
		case events.CompletePayload:
			complete = &p
		}
	}

	if complete != nil {
		fmt.Fprintf(w, "done: %d/%d processed, %d successful, %d failed\n",
			complete.Processed, complete.Total, complete.Successful, complete.Failed)
		if complete.TokensUsed != nil && complete.Cost != nil {
			fmt.Fprintf(w, "      %d tokens, $%.4f\n", *complete.TokensUsed, *complete.Cost)
		}
	}
	return complete
}
