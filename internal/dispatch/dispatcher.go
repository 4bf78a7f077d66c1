// Package dispatch maps decoded hub records to semantic events and loop
// control actions.
package dispatch

import (
	"strings"

	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action tells the receive loop what to do after a record.
type Action int

const (
	// Continue reading.
	Continue Action = iota
	// Heartbeat asks the loop to echo a heartbeat and keep reading.
	Heartbeat
	// Terminate ends the receive loop as natural completion.
	Terminate
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Heartbeat:
		return "heartbeat"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Result is the outcome of one record.
type Result struct {
	Events []events.Event
	Action Action
}

// Spawner starts a background image job for a generation request.
type Spawner interface {
	Spawn(messageID, prompt string)
}

// SourceImageName is the name given to thumbnails attached to sources.
const SourceImageName = "bing_source_image.jpg"

// noiseURLPrefixes mark source links that carry no information on their own.
var noiseURLPrefixes = []string{
	"https://aefd.nelreports.net",
	"https://www.bing.com/search?q=",
}

// Dispatcher turns records into events. It is used by a single receive loop
// and is not safe for concurrent use.
type Dispatcher struct {
	spawner Spawner
	logger  *zap.Logger
}

// New creates a dispatcher. spawner may be nil, in which case generation
// requests are dropped.
func New(spawner Spawner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{spawner: spawner, logger: logger}
}

// Dispatch handles one record. Unknown types and malformed payloads yield
// Continue with no events.
func (d *Dispatcher) Dispatch(rec protocol.Record) Result {
	typ, ok := rec.Type()
	if !ok {
		d.logger.Debug("ignoring record without type")
		return Result{Action: Continue}
	}

	switch typ {
	case protocol.TypeUpdate:
		return Result{Events: d.update(rec), Action: Continue}
	case protocol.TypeFinal:
		return Result{Events: d.final(rec), Action: Terminate}
	case protocol.TypeCancelled:
		return Result{Action: Terminate}
	case protocol.TypeHeartbeat:
		return Result{Action: Heartbeat}
	default:
		d.logger.Debug("ignoring record", zap.Int("type", typ))
		return Result{Action: Continue}
	}
}

func (d *Dispatcher) update(rec protocol.Record) []events.Event {
	var payload protocol.UpdatePayload
	if err := rec.Decode(&payload); err != nil {
		d.logger.Debug("malformed update", zap.Error(err))
		return nil
	}

	var out []events.Event
	for _, arg := range payload.Arguments {
		for _, msg := range arg.Messages {
			if msg.Text == nil {
				continue
			}
			text := *msg.Text

			if msg.ContentOrigin == protocol.OriginApology {
				out = append(out, events.Apology(text))
				continue
			}

			switch msg.MessageType {
			case "":
				out = append(out, events.TextUpdate(text))
			case protocol.MessageGenerateContent:
				d.spawn(msg.MessageID, text)
			case protocol.MessageLoader:
				out = append(out, events.Notice(text))
			default:
				// Search results and other internal messages are not shown.
			}
		}
	}
	return out
}

func (d *Dispatcher) spawn(messageID, prompt string) {
	if d.spawner == nil {
		d.logger.Warn("dropping image request without a job pool")
		return
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	d.logger.Debug("spawning image job", zap.String("message_id", messageID))
	d.spawner.Spawn(messageID, prompt)
}

func (d *Dispatcher) final(rec protocol.Record) []events.Event {
	var payload protocol.FinalPayload
	if err := rec.Decode(&payload); err != nil {
		d.logger.Debug("malformed final record", zap.Error(err))
		return nil
	}
	item := payload.Item
	if item == nil {
		return nil
	}

	var out []events.Event
	if item.Result != nil && !item.Result.OK() && item.Result.Message != "" {
		out = append(out, events.Apology(item.Result.Message))
	}

	for _, msg := range item.Messages {
		if msg.Author != "bot" {
			continue
		}
		if sources := ConvertSources(msg.SourceAttributions); len(sources) > 0 {
			out = append(out, events.Sources(sources))
		}
		if replies := ConvertReplies(msg.SuggestedResponses); len(replies) > 0 {
			out = append(out, events.SuggestedReplies(replies))
		}
	}

	if t := item.Throttling; t != nil {
		out = append(out, events.UsageLimit(events.Limit{
			Used:        t.NumUserMessagesInConversation,
			Max:         t.MaxNumUserMessagesInConversation,
			LongDocUsed: t.NumLongDocSummaryUserMessagesInConversation,
			LongDocMax:  t.MaxNumLongDocSummaryUserMessagesInConversation,
		}))
	}
	return out
}

// ConvertSources keeps every attribution that names something. Entries with
// nothing but a noise URL, and entries with no name, URL or image, are dropped.
func ConvertSources(raw []protocol.SourceAttribution) []events.Source {
	var out []events.Source
	for _, attr := range raw {
		src := events.Source{
			DisplayName: deref(attr.ProviderDisplayName),
			SeeMoreURL:  deref(attr.SeeMoreURL),
		}
		if link := deref(attr.ImageLink); link != "" {
			src.Image = &events.Image{Name: SourceImageName, URL: link}
		}

		if src.DisplayName == "" && src.Image == nil && (src.SeeMoreURL == "" || isNoise(src.SeeMoreURL)) {
			continue
		}
		out = append(out, src)
	}
	return out
}

// ConvertReplies collects the text of each suggested response.
func ConvertReplies(raw []protocol.SuggestedResponse) []string {
	var out []string
	for _, r := range raw {
		if r.Text != nil {
			out = append(out, *r.Text)
		}
	}
	return out
}

func isNoise(url string) bool {
	for _, prefix := range noiseURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TypeLabel is the metric label for a record type.
func TypeLabel(rec protocol.Record) string {
	typ, ok := rec.Type()
	if !ok {
		return "invalid"
	}
	switch typ {
	case protocol.TypeUpdate:
		return "update"
	case protocol.TypeFinal:
		return "final"
	case protocol.TypeCancelled:
		return "cancelled"
	case protocol.TypeRequest:
		return "request"
	case protocol.TypeHeartbeat:
		return "heartbeat"
	default:
		return "other"
	}
}
