package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ChatRequest is the type-4 record that asks the hub for an answer.
type ChatRequest struct {
	Arguments    []ChatArguments `json:"arguments"`
	InvocationID string          `json:"invocationId"`
	Target       string          `json:"target"`
	Type         int             `json:"type"`
}

// ChatArguments carries the user message and the conversation options.
type ChatArguments struct {
	Source                         string             `json:"source"`
	OptionsSets                    []string           `json:"optionsSets"`
	AllowedMessageTypes            []string           `json:"allowedMessageTypes"`
	SliceIDs                       []string           `json:"sliceIds"`
	Verbosity                      string             `json:"verbosity"`
	Scenario                       string             `json:"scenario"`
	Plugins                        []Plugin           `json:"plugins"`
	TraceID                        string             `json:"traceId"`
	ConversationHistoryOptionsSets []string           `json:"conversationHistoryOptionsSets"`
	GptID                          string             `json:"gptId"`
	IsStartOfSession               bool               `json:"isStartOfSession"`
	RequestID                      string             `json:"requestId"`
	Message                        ChatMessage        `json:"message"`
	Tone                           string             `json:"tone"`
	ExtraExtensionParameters       map[string]Persona `json:"extraExtensionParameters"`
	SpokenTextMode                 string             `json:"spokenTextMode"`
	ConversationID                 string             `json:"conversationId"`
	Participant                    Participant        `json:"participant"`
}

// ChatMessage is the user turn.
type ChatMessage struct {
	Locale           string `json:"locale"`
	Market           string `json:"market"`
	Region           string `json:"region"`
	Location         string `json:"location"`
	Timestamp        string `json:"timestamp"`
	Author           string `json:"author"`
	InputMethod      string `json:"inputMethod"`
	Text             string `json:"text"`
	ImageURL         string `json:"imageUrl,omitempty"`
	OriginalImageURL string `json:"originalImageUrl,omitempty"`
	MessageType      string `json:"messageType"`
	RequestID        string `json:"requestId"`
	MessageID        string `json:"messageId"`
}

// Persona selects the GPT persona.
type Persona struct {
	PersonaID string `json:"personaId"`
}

// Participant identifies the client.
type Participant struct {
	ID string `json:"id"`
}

// RequestParams are the inputs of NewChatRequest.
type RequestParams struct {
	ConversationID string
	ClientID       string
	Text           string
	Tone           Tone
	Plugins        []Plugin
	// ImageURL is an already uploaded attachment.
	ImageURL string
	Locale   string
	Region   string
}

// NewChatRequest builds the request record for one user turn.
func NewChatRequest(p RequestParams) ChatRequest {
	requestID := uuid.NewString()
	locale := p.Locale
	if locale == "" {
		locale = "en-US"
	}
	region := p.Region
	if region == "" {
		region = "US"
	}
	plugins := p.Plugins
	if plugins == nil {
		plugins = []Plugin{}
	}

	return ChatRequest{
		Arguments: []ChatArguments{{
			Source:                         "cib",
			OptionsSets:                    p.Tone.optionsSets(),
			AllowedMessageTypes:            allowedMessageTypes,
			SliceIDs:                       p.Tone.sliceIDs(),
			Verbosity:                      "verbose",
			Scenario:                       "SERP",
			Plugins:                        plugins,
			TraceID:                        newTraceID(),
			ConversationHistoryOptionsSets: []string{"autosave", "savemem", "uprofupd", "uprofgen"},
			GptID:                          "copilot",
			IsStartOfSession:               true,
			RequestID:                      requestID,
			Message: ChatMessage{
				Locale:           locale,
				Market:           locale,
				Region:           region,
				Location:         "lat:47.639557;long:-122.128159;re=1000m;",
				Timestamp:        time.Now().Format(time.RFC3339),
				Author:           "user",
				InputMethod:      "Keyboard",
				Text:             p.Text,
				ImageURL:         p.ImageURL,
				OriginalImageURL: p.ImageURL,
				MessageType:      "Chat",
				RequestID:        requestID,
				MessageID:        requestID,
			},
			Tone:                     p.Tone.String(),
			ExtraExtensionParameters: map[string]Persona{"gpt-creator-persona": {PersonaID: "copilot"}},
			SpokenTextMode:           "None",
			ConversationID:           p.ConversationID,
			Participant:              Participant{ID: p.ClientID},
		}},
		InvocationID: "6",
		Target:       "chat",
		Type:         TypeRequest,
	}
}

// newTraceID returns 16 random bytes as hex.
func newTraceID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf[:])
}
