package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected []string
	}{
		{
			name:     "empty frame",
			frame:    "",
			expected: []string{},
		},
		{
			name:     "single record with trailing separator",
			frame:    "{\"type\":6}\x1e",
			expected: []string{`{"type":6}`},
		},
		{
			name:     "several records keep order",
			frame:    "{\"type\":1}\x1e{\"type\":6}\x1e{\"type\":2}\x1e",
			expected: []string{`{"type":1}`, `{"type":6}`, `{"type":2}`},
		},
		{
			name:     "malformed record dropped",
			frame:    "{\"type\":1}\x1e{not json\x1e{\"type\":3}\x1e",
			expected: []string{`{"type":1}`, `{"type":3}`},
		},
		{
			name:     "missing trailing separator",
			frame:    "{\"a\":1}\x1e{\"b\":2}",
			expected: []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:     "only separators",
			frame:    "\x1e\x1e\x1e",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := DecodeString(tt.frame)
			got := make([]string, 0, len(records))
			for _, r := range records {
				got = append(got, r.String())
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeKeepsValidSubset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		var (
			frame    strings.Builder
			expected []int
		)
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "valid") {
				frame.WriteString(`{"type":` + strconv.Itoa(i) + `,"text":"r` + strconv.Itoa(i) + `"}`)
				expected = append(expected, i)
			} else {
				frame.WriteString(`{"type":` + strconv.Itoa(i) + `,`)
			}
			frame.WriteByte(RecordSeparator)
		}

		records := DecodeString(frame.String())
		if len(records) != len(expected) {
			t.Fatalf("expected %d records, got %d", len(expected), len(records))
		}
		for i, rec := range records {
			typ, ok := rec.Type()
			if !ok || typ != expected[i] {
				t.Fatalf("record %d: expected type %d, got %d (ok=%v)", i, expected[i], typ, ok)
			}
		}
	})
}

func TestRecordType(t *testing.T) {
	tests := []struct {
		record string
		want   int
		ok     bool
	}{
		{`{"type":1}`, 1, true},
		{`{"type":6,"extra":true}`, 6, true},
		{`{"type":"1"}`, 0, false},
		{`{"type":1.5}`, 0, false},
		{`{"other":1}`, 0, false},
		{`[1,2,3]`, 0, false},
		{`"text"`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			got, ok := Record(tt.record).Type()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Run("handshake", func(t *testing.T) {
		data, err := Encode(NewHandshake())
		require.NoError(t, err)
		assert.Equal(t, "{\"protocol\":\"json\",\"version\":1}\x1e", string(data))
	})

	t.Run("heartbeat", func(t *testing.T) {
		data, err := Encode(NewHeartbeat())
		require.NoError(t, err)
		assert.Equal(t, "{\"type\":6}\x1e", string(data))
	})

	t.Run("stop request", func(t *testing.T) {
		data, err := Encode(NewStopRequest("3"))
		require.NoError(t, err)
		assert.Equal(t, "{\"arguments\":[{}],\"invocationId\":\"3\",\"target\":\"stop\",\"type\":1}\x1e", string(data))
	})

	t.Run("exactly one separator", func(t *testing.T) {
		data, err := Encode(map[string]string{"text": "a\x1eb"})
		require.NoError(t, err)
		assert.Equal(t, RecordSeparator, data[len(data)-1])
		assert.Len(t, DecodeString(string(data)), 1)
	})
}

func TestEncodeDecodeRequest(t *testing.T) {
	req := NewChatRequest(RequestParams{
		ConversationID: "conv-1",
		ClientID:       "client-1",
		Text:           "hello",
		Tone:           TonePrecise,
		Plugins:        []Plugin{SearchPlugin()},
	})

	data, err := Encode(req)
	require.NoError(t, err)

	records := Decode(data)
	require.Len(t, records, 1)

	typ, ok := records[0].Type()
	require.True(t, ok)
	assert.Equal(t, TypeRequest, typ)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0], &decoded))
	assert.Equal(t, "chat", decoded["target"])
	assert.Equal(t, "6", decoded["invocationId"])
}
