// Package events defines the semantic events produced by a chat session.
package events

import (
	"fmt"
	"strings"
)

// Kind tags the variant of an Event.
type Kind int

const (
	KindText Kind = iota + 1
	KindSuggestedReplies
	KindNotice
	KindImages
	KindApology
	KindSources
	KindUsageLimit
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSuggestedReplies:
		return "suggested_replies"
	case KindNotice:
		return "notice"
	case KindImages:
		return "images"
	case KindApology:
		return "apology"
	case KindSources:
		return "sources"
	case KindUsageLimit:
		return "usage_limit"
	default:
		return "unknown"
	}
}

// Image is a named image URL.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// String renders the image as markdown.
func (i Image) String() string {
	return fmt.Sprintf("![%s](%s)", i.Name, i.URL)
}

// Source is a source attribution for an answer.
type Source struct {
	DisplayName string `json:"display_name,omitempty"`
	SeeMoreURL  string `json:"see_more_url,omitempty"`
	Image       *Image `json:"image,omitempty"`
}

// String renders the source as a markdown link, with its image on a second line.
func (s Source) String() string {
	name := s.DisplayName
	if name == "" {
		name = s.SeeMoreURL
	}
	if name == "" {
		name = "Unknown"
	}
	url := s.SeeMoreURL
	if url == "" {
		url = "Unknown"
	}
	out := fmt.Sprintf("[%s](%s)", name, url)
	if s.Image != nil {
		out += "\n" + s.Image.String()
	}
	return out
}

// Limit reports how much of the conversation budget is used.
type Limit struct {
	Used        int `json:"used"`
	Max         int `json:"max"`
	LongDocUsed int `json:"long_doc_used"`
	LongDocMax  int `json:"long_doc_max"`
}

// String returns "Limit: used of max.".
func (l Limit) String() string {
	return fmt.Sprintf("Limit: %d of %d.", l.Used, l.Max)
}

// Event is one semantic event. Only the fields of its Kind are set.
type Event struct {
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Replies []string `json:"replies,omitempty"`
	Images  []Image  `json:"images,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Limit   *Limit   `json:"limit,omitempty"`
}

// TextUpdate carries the full message so far; it replaces any earlier TextUpdate.
func TextUpdate(text string) Event {
	return Event{Kind: KindText, Text: text}
}

// SuggestedReplies lists follow-ups the user may send.
func SuggestedReplies(replies []string) Event {
	return Event{Kind: KindSuggestedReplies, Replies: replies}
}

// Notice is a progress message from the service.
func Notice(text string) Event {
	return Event{Kind: KindNotice, Text: text}
}

// Images carries generated images.
func Images(images []Image) Event {
	return Event{Kind: KindImages, Images: images}
}

// Apology is a refusal or failure delivered as data.
func Apology(text string) Event {
	return Event{Kind: KindApology, Text: text}
}

// Sources carries source attributions.
func Sources(sources []Source) Event {
	return Event{Kind: KindSources, Sources: sources}
}

// UsageLimit carries the throttling state of the conversation.
func UsageLimit(limit Limit) Event {
	return Event{Kind: KindUsageLimit, Limit: &limit}
}

// String renders the event for display.
func (e Event) String() string {
	switch e.Kind {
	case KindText, KindNotice, KindApology:
		return e.Text
	case KindSuggestedReplies:
		var b strings.Builder
		for i, r := range e.Replies {
			fmt.Fprintf(&b, "%d: %s\n", i+1, r)
		}
		return b.String()
	case KindImages:
		var b strings.Builder
		for _, img := range e.Images {
			b.WriteString(img.String() + "\n")
		}
		return b.String()
	case KindSources:
		var b strings.Builder
		for _, s := range e.Sources {
			b.WriteString(s.String() + "\n")
		}
		return b.String()
	case KindUsageLimit:
		if e.Limit == nil {
			return ""
		}
		return e.Limit.String()
	default:
		return ""
	}
}
