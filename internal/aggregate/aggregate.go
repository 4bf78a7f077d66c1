// Package aggregate folds a stream of events into plain text.
package aggregate

import (
	"fmt"
	"iter"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/events"
)

// Summary accumulates the parts of an answer. The zero value is ready to use.
type Summary struct {
	Text    string
	Images  []events.Image
	Sources []events.Source
	Replies []string
	Limits  []events.Limit
}

// Add folds ev into s. A TextUpdate replaces the text; notices and
// apologies are not part of the summary.
func (s *Summary) Add(ev events.Event) {
	switch ev.Kind {
	case events.KindText:
		s.Text = ev.Text
	case events.KindImages:
		s.Images = append(s.Images, ev.Images...)
	case events.KindSources:
		s.Sources = append(s.Sources, ev.Sources...)
	case events.KindSuggestedReplies:
		s.Replies = append(s.Replies, ev.Replies...)
	case events.KindUsageLimit:
		if ev.Limit != nil {
			s.Limits = append(s.Limits, *ev.Limit)
		}
	}
}

// String returns the text followed by the non-empty sections.
func (s *Summary) String() string {
	var b strings.Builder
	b.WriteString(s.Text)
	writeSection(&b, "Images", s.Images)
	writeSection(&b, "Sources", s.Sources)
	writeSection(&b, "Suggest Replys", s.Replies)
	writeSection(&b, "Limits", s.Limits)
	return b.String()
}

func writeSection[T any](b *strings.Builder, title string, items []T) {
	if len(items) == 0 {
		return
	}
	// Every section is preceded by a blank line.
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "\n%s:\n\n", title)
	for i, item := range items {
		fmt.Fprintf(b, "%d. %v\n", i+1, item)
	}
}

// Reduce consumes seq and returns the composed summary. If seq ends with an
// error, the summary of what was received is returned with it.
func Reduce(seq iter.Seq2[events.Event, error]) (string, error) {
	var s Summary
	for ev, err := range seq {
		if err != nil {
			return s.String(), err
		}
		s.Add(ev)
	}
	return s.String(), nil
}

// Stream yields the text of every TextUpdate as it arrives and the composed
// summary last. If seq fails, the summary is yielded with the error.
func Stream(seq iter.Seq2[events.Event, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var s Summary
		for ev, err := range seq {
			if err != nil {
				yield(s.String(), err)
				return
			}
			s.Add(ev)
			if ev.Kind == events.KindText && !yield(ev.Text, nil) {
				return
			}
		}
		yield(s.String(), nil)
	}
}

// FromSlice adapts a slice of events to the sequence form.
func FromSlice(evs []events.Event) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}
