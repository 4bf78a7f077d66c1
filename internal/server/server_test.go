package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/GriffinCanCode/copilot/internal/credentials"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	updateFrame = `{"type":1,"arguments":[{"messages":[{"text":"Hi","author":"bot"}]}]}` + "\x1e" +
		`{"type":1,"arguments":[{"messages":[{"text":"Hi there!","author":"bot"}]}]}` + "\x1e"
	finalFrame = `{"type":2,"item":{"messages":[{"author":"bot","text":"Hi there!",` +
		`"suggestedResponses":[{"text":"Tell me more"}]}],"result":{"value":"Success"}}}` + "\x1e"
)

// upstream fakes the Copilot REST endpoints and the hub.
type upstream struct {
	srv     *httptest.Server
	deletes atomic.Int32
	// gate holds the hub before the final record until it is closed.
	gate chan struct{}
}

func newUpstream(t *testing.T, hold bool) *upstream {
	t.Helper()
	u := &upstream{gate: make(chan struct{})}
	if !hold {
		close(u.gate)
	}

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/turing/userconsent", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"clientId":"client-1","result":{"value":"Success"}}`)
	})
	mux.HandleFunc("/turing/conversation/create", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("conversationId")
		if id == "" {
			id = "new-1"
		}
		w.Header().Set("X-Sydney-Conversationsignature", "plain-"+id)
		w.Header().Set("X-Sydney-Encryptedconversationsignature", "enc-"+id)
		writeJSON(w, `{"conversationId":"`+id+`","clientId":"client-1","result":{"value":"Success"}}`)
	})
	mux.HandleFunc("/turing/conversation/chats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"chats":[{"conversationId":"c1","chatName":"Trip","tone":"Creative",`+
			`"plugins":[{"id":"c310c353-b9f0-4d76-ab0d-1dd5e979cf68","category":1}]}],`+
			`"clientId":"client-1","result":{"value":"Success","message":null}}`)
	})
	mux.HandleFunc("/sydney/DeleteSingleConversation", func(w http.ResponseWriter, r *http.Request) {
		u.deletes.Add(1)
		writeJSON(w, `{"conversationId":"c1","result":{"value":"Success","message":null}}`)
	})
	mux.HandleFunc("/sydney/DeleteConversations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"conversationIdsDeleted":["c1"],"result":{"value":"Success","message":null}}`)
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/sydney/ChatHub", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		for i := 0; i < 3; i++ {
			if _, _, err := conn.ReadMessage(); !assert.NoError(t, err) {
				return
			}
			if i == 0 {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e"))
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(updateFrame))
		<-u.gate
		_ = conn.WriteMessage(websocket.TextMessage, []byte(finalFrame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

type harness struct {
	upstream *upstream
	bridge   *httptest.Server
	metrics  *monitoring.Metrics
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, false)
}

func newHarnessWith(t *testing.T, hold bool) *harness {
	t.Helper()
	u := newUpstream(t, hold)

	cfg := config.Default()
	cfg.Bing.BaseURL = u.srv.URL
	cfg.Bing.SydneyURL = u.srv.URL
	cfg.Hub.URL = "ws" + strings.TrimPrefix(u.srv.URL, "http") + "/sydney/ChatHub"
	cfg.HTTP.RetryCount = 0
	cfg.RateLimit.Enabled = false

	creds, err := credentials.FromHeader("_U=abc")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	copilot, err := client.New(cfg, creds, client.Options{Metrics: metrics})
	require.NoError(t, err)

	srv := NewServer(cfg, copilot, Options{Metrics: metrics, Gatherer: reg})
	bridge := httptest.NewServer(srv.Handler())
	t.Cleanup(bridge.Close)

	return &harness{upstream: u, bridge: bridge, metrics: metrics}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.bridge.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"online"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"breaker":"closed"`)

	resp, body = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "copilot_http_requests_total")
}

func TestConversationRoutes(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Conversations []struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Plugins []string `json:"plugins"`
		} `json:"conversations"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "c1", list.Conversations[0].ID)
	assert.Equal(t, "Trip", list.Conversations[0].Name)
	assert.Equal(t, []string{"Search"}, list.Conversations[0].Plugins)

	resp, body = h.do(t, http.MethodPost, "/api/conversations", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, body, `"id":"new-1"`)

	resp, _ = h.do(t, http.MethodDelete, "/api/conversations/c1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), h.upstream.deletes.Load())

	resp, body = h.do(t, http.MethodPost, "/api/conversations/delete", `{"ids":["c1"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"deleted":["c1"]`)

	resp, _ = h.do(t, http.MethodPost, "/api/conversations/delete", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPut, "/api/conversations/c1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskStreamsEvents(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/ask", `{"text":"hello","tone":"precise"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			names = append(names, strings.TrimSpace(name))
		}
	}
	assert.Equal(t, []string{"start", "text", "text", "suggested_replies", "done"}, names)
	assert.Contains(t, body, `"conversation_id":"new-1"`)
	assert.Contains(t, body, `Suggest Replys:`)
}

func TestAskRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"tone":"creative"}`},
		{"blank text", `{"text":"   "}`},
		{"unknown tone", `{"text":"hello","tone":"loud"}`},
		{"unknown plugin", `{"text":"hello","plugins":["Weather"]}`},
		{"malformed", `{"text":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.do(t, http.MethodPost, "/api/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func dialBridge(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.bridge.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "system", hello["type"])
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []map[string]interface{} {
	t.Helper()
	var seen []map[string]interface{}
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		seen = append(seen, msg)
		if msg["type"] == msgType {
			return seen
		}
	}
}

func TestWebSocketAsk(t *testing.T) {
	h := newHarness(t)
	conn := dialBridge(t, h)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	msgs := readUntil(t, conn, "pong")
	assert.Len(t, msgs, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "text": "hello"}))
	msgs = readUntil(t, conn, "complete")

	assert.Equal(t, "start", msgs[0]["type"])
	var kinds []string
	for _, m := range msgs {
		if m["type"] == "event" {
			kinds = append(kinds, m["kind"].(string))
		}
	}
	assert.Equal(t, []string{"text", "text", "suggested_replies"}, kinds)

	last := msgs[len(msgs)-1]
	assert.Equal(t, false, last["stopped"])
	assert.Equal(t, "Hi there!\n\nSuggest Replys:\n\n1. Tell me more\n", last["summary"])
}

func TestWebSocketStop(t *testing.T) {
	h := newHarnessWith(t, true)
	conn := dialBridge(t, h)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "stop"}))
	msgs := readUntil(t, conn, "error")
	assert.Equal(t, "no answer is streaming", msgs[0]["message"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "text": "hello"}))
	readUntil(t, conn, "event")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "text": "again"}))
	msgs = readUntil(t, conn, "error")
	assert.Contains(t, msgs[len(msgs)-1]["message"], "already streaming")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "stop"}))
	readUntil(t, conn, "stopping")
	close(h.upstream.gate)

	msgs = readUntil(t, conn, "complete")
	assert.Equal(t, true, msgs[len(msgs)-1]["stopped"])
}

func TestWebSocketUnknownType(t *testing.T) {
	h := newHarness(t)
	conn := dialBridge(t, h)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	msgs := readUntil(t, conn, "error")
	assert.Equal(t, "unknown message type", msgs[0]["message"])

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WSMessages.WithLabelValues("in", "unknown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.WSMessages.WithLabelValues("in", "dance")))
}

func TestRunShutsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	creds, err := credentials.FromHeader("_U=abc")
	require.NoError(t, err)
	copilot, err := client.New(cfg, creds, client.Options{})
	require.NoError(t, err)

	srv := NewServer(cfg, copilot, Options{Gatherer: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAllowOrigin(t *testing.T) {
	assert.Nil(t, allowOrigin([]string{"*"}))

	allow := allowOrigin([]string{"http://localhost:3000"})
	require.NotNil(t, allow)
	assert.True(t, allow("http://localhost:3000"))
	assert.False(t, allow("http://evil.example"))
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Enabled: true, Global: true}
	creds, err := credentials.FromHeader("_U=abc")
	require.NoError(t, err)
	copilot, err := client.New(cfg, creds, client.Options{})
	require.NoError(t, err)
	handler := NewServer(cfg, copilot, Options{Gatherer: prometheus.NewRegistry()}).Handler()

	codes := make([]int, 0, 2)
	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
