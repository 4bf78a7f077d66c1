package protocol

// Record types on the hub.
const (
	TypeUpdate    = 1
	TypeFinal     = 2
	TypeCancelled = 3
	TypeRequest   = 4
	TypeHeartbeat = 6
)

// Message types carried inside type-1 updates.
const (
	MessageGenerateContent = "GenerateContentQuery"
	MessageLoader          = "InternalLoaderMessage"
	OriginApology          = "Apology"
)

// Handshake opens the JSON sub-protocol.
type Handshake struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// NewHandshake returns {"protocol":"json","version":1}.
func NewHandshake() Handshake {
	return Handshake{Protocol: "json", Version: 1}
}

// Heartbeat is sent by the server and echoed back.
type Heartbeat struct {
	Type int `json:"type"`
}

// NewHeartbeat returns {"type":6}.
func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: TypeHeartbeat}
}

// Invocation is a client-to-hub call.
type Invocation struct {
	Arguments    []interface{} `json:"arguments"`
	InvocationID string        `json:"invocationId"`
	Target       string        `json:"target"`
	Type         int           `json:"type"`
}

// NewStopRequest asks the hub to stop generating the current answer.
func NewStopRequest(invocationID string) Invocation {
	return Invocation{
		Arguments:    []interface{}{struct{}{}},
		InvocationID: invocationID,
		Target:       "stop",
		Type:         TypeUpdate,
	}
}

// UpdatePayload is the part of a type-1 record the dispatcher reads.
type UpdatePayload struct {
	Arguments []struct {
		Messages []UpdateMessage `json:"messages"`
	} `json:"arguments"`
}

// UpdateMessage is one bot message inside an update.
type UpdateMessage struct {
	Text          *string `json:"text"`
	Author        string  `json:"author"`
	ContentOrigin string  `json:"contentOrigin"`
	ContentType   string  `json:"contentType"`
	MessageType   string  `json:"messageType"`
	MessageID     string  `json:"messageId"`
}

// FinalPayload is the part of a type-2 record the dispatcher reads.
type FinalPayload struct {
	Item *FinalItem `json:"item"`
}

// FinalItem holds the completed exchange.
type FinalItem struct {
	Messages   []FinalMessage `json:"messages"`
	Throttling *Throttling    `json:"throttling"`
	Result     *Result        `json:"result"`
}

// FinalMessage is a message of the completed exchange.
type FinalMessage struct {
	Author             string              `json:"author"`
	Text               string              `json:"text"`
	SourceAttributions []SourceAttribution `json:"sourceAttributions"`
	SuggestedResponses []SuggestedResponse `json:"suggestedResponses"`
}

// SourceAttribution is a raw source reference.
type SourceAttribution struct {
	ProviderDisplayName *string `json:"providerDisplayName"`
	SeeMoreURL          *string `json:"seeMoreUrl"`
	ImageLink           *string `json:"imageLink"`
}

// SuggestedResponse is a follow-up the user can send.
type SuggestedResponse struct {
	Text *string `json:"text"`
}

// Throttling reports per-conversation usage.
type Throttling struct {
	MaxNumUserMessagesInConversation               int `json:"maxNumUserMessagesInConversation"`
	NumUserMessagesInConversation                  int `json:"numUserMessagesInConversation"`
	MaxNumLongDocSummaryUserMessagesInConversation int `json:"maxNumLongDocSummaryUserMessagesInConversation"`
	NumLongDocSummaryUserMessagesInConversation    int `json:"numLongDocSummaryUserMessagesInConversation"`
}

// Result is the status block returned by the hub and the REST endpoints.
type Result struct {
	Value          string `json:"value"`
	Message        string `json:"message"`
	ServiceVersion string `json:"serviceVersion,omitempty"`
}

// ResultSuccess is the only Result.Value that means success.
const ResultSuccess = "Success"

// OK reports whether the result value is Success.
func (r *Result) OK() bool {
	return r != nil && r.Value == ResultSuccess
}
