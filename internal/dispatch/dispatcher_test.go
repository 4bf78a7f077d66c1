package dispatch

import (
	"testing"

	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnCall struct {
	messageID string
	prompt    string
}

type recordingSpawner struct {
	calls []spawnCall
}

func (s *recordingSpawner) Spawn(messageID, prompt string) {
	s.calls = append(s.calls, spawnCall{messageID, prompt})
}

func record(t *testing.T, raw string) protocol.Record {
	t.Helper()
	recs := protocol.DecodeString(raw)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestDispatchUpdate(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		events []events.Event
	}{
		{
			name:   "text update",
			raw:    `{"type":1,"arguments":[{"messages":[{"text":"Hi","author":"bot"}]}]}`,
			events: []events.Event{events.TextUpdate("Hi")},
		},
		{
			name:   "apology wins over message type",
			raw:    `{"type":1,"arguments":[{"messages":[{"text":"Sorry","contentOrigin":"Apology","messageType":"InternalLoaderMessage"}]}]}`,
			events: []events.Event{events.Apology("Sorry")},
		},
		{
			name:   "loader notice",
			raw:    `{"type":1,"arguments":[{"messages":[{"text":"Searching for: go","messageType":"InternalLoaderMessage"}]}]}`,
			events: []events.Event{events.Notice("Searching for: go")},
		},
		{
			name:   "internal search result ignored",
			raw:    `{"type":1,"arguments":[{"messages":[{"text":"{...}","messageType":"InternalSearchResult"}]}]}`,
			events: nil,
		},
		{
			name:   "null text skipped",
			raw:    `{"type":1,"arguments":[{"messages":[{"text":null},{"author":"bot"},{"text":"Hi there!"}]}]}`,
			events: []events.Event{events.TextUpdate("Hi there!")},
		},
		{
			name: "several messages keep order",
			raw:  `{"type":1,"arguments":[{"messages":[{"text":"Looking","messageType":"InternalLoaderMessage"},{"text":"Hi"}]},{"messages":[{"text":"Hi there"}]}]}`,
			events: []events.Event{
				events.Notice("Looking"),
				events.TextUpdate("Hi"),
				events.TextUpdate("Hi there"),
			},
		},
		{
			name:   "malformed arguments ignored",
			raw:    `{"type":1,"arguments":"nope"}`,
			events: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(&recordingSpawner{}, nil)
			res := d.Dispatch(record(t, tt.raw))
			assert.Equal(t, Continue, res.Action)
			assert.Equal(t, tt.events, res.Events)
		})
	}
}

func TestDispatchGenerateContentSpawnsJob(t *testing.T) {
	spawner := &recordingSpawner{}
	d := New(spawner, nil)

	res := d.Dispatch(record(t, `{"type":1,"arguments":[{"messages":[{"text":"a red fox","messageType":"GenerateContentQuery","messageId":"m-1"}]}]}`))
	assert.Equal(t, Continue, res.Action)
	assert.Empty(t, res.Events)
	require.Len(t, spawner.calls, 1)
	assert.Equal(t, spawnCall{"m-1", "a red fox"}, spawner.calls[0])

	// A missing message id still gets a unique key.
	d.Dispatch(record(t, `{"type":1,"arguments":[{"messages":[{"text":"a cat","messageType":"GenerateContentQuery"}]}]}`))
	d.Dispatch(record(t, `{"type":1,"arguments":[{"messages":[{"text":"a cat","messageType":"GenerateContentQuery"}]}]}`))
	require.Len(t, spawner.calls, 3)
	assert.NotEmpty(t, spawner.calls[1].messageID)
	assert.NotEqual(t, spawner.calls[1].messageID, spawner.calls[2].messageID)
}

func TestDispatchWithoutSpawner(t *testing.T) {
	d := New(nil, nil)
	res := d.Dispatch(record(t, `{"type":1,"arguments":[{"messages":[{"text":"x","messageType":"GenerateContentQuery"}]}]}`))
	assert.Equal(t, Continue, res.Action)
	assert.Empty(t, res.Events)
}

func TestDispatchControlRecords(t *testing.T) {
	tests := []struct {
		raw    string
		action Action
	}{
		{`{"type":3,"invocationId":"3"}`, Terminate},
		{`{"type":6}`, Heartbeat},
		{`{"type":7}`, Continue},
		{`{"type":"1"}`, Continue},
		{`{"hello":"world"}`, Continue},
		{`[1,2,3]`, Continue},
		{`{}`, Continue},
	}

	d := New(nil, nil)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res := d.Dispatch(record(t, tt.raw))
			assert.Equal(t, tt.action, res.Action)
			assert.Empty(t, res.Events)
		})
	}
}

func TestDispatchFinal(t *testing.T) {
	raw := `{"type":2,"invocationId":"0","item":{
		"messages":[
			{"author":"user","text":"hello","suggestedResponses":[{"text":"ignored"}]},
			{"author":"bot","text":"Hi there!",
			 "sourceAttributions":[
				{"providerDisplayName":"Go","seeMoreUrl":"https://go.dev"},
				{"seeMoreUrl":"https://aefd.nelreports.net/api/report"},
				{"providerDisplayName":"Only name"},
				{"providerDisplayName":"Thumb","seeMoreUrl":"https://a.example","imageLink":"https://img.example/1.png"},
				{}
			 ],
			 "suggestedResponses":[{"text":"Tell me more"},{"text":null}]}
		],
		"throttling":{"maxNumUserMessagesInConversation":30,"numUserMessagesInConversation":2,
			"maxNumLongDocSummaryUserMessagesInConversation":50,"numLongDocSummaryUserMessagesInConversation":1},
		"result":{"value":"Success","message":"Hi there!"}
	}}`

	res := New(nil, nil).Dispatch(record(t, raw))
	assert.Equal(t, Terminate, res.Action)
	require.Len(t, res.Events, 3)

	assert.Equal(t, events.Sources([]events.Source{
		{DisplayName: "Go", SeeMoreURL: "https://go.dev"},
		{DisplayName: "Only name"},
		{DisplayName: "Thumb", SeeMoreURL: "https://a.example", Image: &events.Image{Name: SourceImageName, URL: "https://img.example/1.png"}},
	}), res.Events[0])
	assert.Equal(t, events.SuggestedReplies([]string{"Tell me more"}), res.Events[1])
	assert.Equal(t, events.UsageLimit(events.Limit{Used: 2, Max: 30, LongDocUsed: 1, LongDocMax: 50}), res.Events[2])
}

func TestDispatchFinalFailureResult(t *testing.T) {
	raw := `{"type":2,"item":{"result":{"value":"Throttled","message":"Too many messages today."}}}`

	res := New(nil, nil).Dispatch(record(t, raw))
	assert.Equal(t, Terminate, res.Action)
	assert.Equal(t, []events.Event{events.Apology("Too many messages today.")}, res.Events)
}

func TestDispatchFinalWithoutItem(t *testing.T) {
	d := New(nil, nil)

	res := d.Dispatch(record(t, `{"type":2}`))
	assert.Equal(t, Terminate, res.Action)
	assert.Empty(t, res.Events)

	res = d.Dispatch(record(t, `{"type":2,"item":"broken"}`))
	assert.Equal(t, Terminate, res.Action)
	assert.Empty(t, res.Events)
}

func TestConvertSourcesNoise(t *testing.T) {
	ptr := func(s string) *string { return &s }

	tests := []struct {
		name string
		in   protocol.SourceAttribution
		keep bool
	}{
		{"noise url only", protocol.SourceAttribution{SeeMoreURL: ptr("https://www.bing.com/search?q=go")}, false},
		{"noise url with name", protocol.SourceAttribution{ProviderDisplayName: ptr("Bing"), SeeMoreURL: ptr("https://www.bing.com/search?q=go")}, true},
		{"noise url with image", protocol.SourceAttribution{SeeMoreURL: ptr("https://aefd.nelreports.net/x"), ImageLink: ptr("https://img")}, true},
		{"name only", protocol.SourceAttribution{ProviderDisplayName: ptr("Go")}, true},
		{"plain url", protocol.SourceAttribution{SeeMoreURL: ptr("https://go.dev")}, true},
		{"empty strings", protocol.SourceAttribution{ProviderDisplayName: ptr(""), SeeMoreURL: ptr("")}, false},
		{"nothing", protocol.SourceAttribution{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ConvertSources([]protocol.SourceAttribution{tt.in})
			if tt.keep {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "heartbeat", TypeLabel(record(t, `{"type":6}`)))
	assert.Equal(t, "final", TypeLabel(record(t, `{"type":2}`)))
	assert.Equal(t, "other", TypeLabel(record(t, `{"type":7}`)))
	assert.Equal(t, "invalid", TypeLabel(record(t, `{"x":1}`)))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "heartbeat", Heartbeat.String())
	assert.Equal(t, "terminate", Terminate.String())
	assert.Equal(t, "unknown", Action(9).String())
}
