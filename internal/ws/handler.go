package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/copilot/internal/aggregate"
	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/shared/id"
	"github.com/GriffinCanCode/copilot/internal/stopsignal"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxMessageSize bounds one inbound client message.
const maxMessageSize = 16 * 1024

var errAskInProgress = errors.New("an answer is already streaming")

// Message is a client → server message.
type Message struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Text           string   `json:"text,omitempty"`
	Tone           string   `json:"tone,omitempty"`
	Plugins        []string `json:"plugins,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	Region         string   `json:"region,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	client   *client.Client
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowOrigin decides which
// browser origins may connect; nil allows all.
func NewHandler(c *client.Client, metrics *monitoring.Metrics, logger *zap.Logger, allowOrigin func(origin string) bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		client:  c,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowOrigin == nil {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin(origin)
			},
		},
	}
}

// connection serializes writes and tracks the one answer that may stream
// at a time.
type connection struct {
	conn    *websocket.Conn
	id      id.ConnID
	metrics *monitoring.Metrics

	writeMu sync.Mutex

	mu   sync.Mutex
	stop stopsignal.Trigger
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	cx := &connection{conn: conn, id: id.NewConnID(), metrics: h.metrics}
	log := h.logger.With(zap.Stringer("conn_id", cx.id))
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	ctx, cancel := context.WithCancel(c.Request.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	cx.send(gin.H{
		"type":    "system",
		"conn_id": cx.id.String(),
		"message": "Connected to Copilot bridge",
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", inboundLabel(msg.Type))

		switch msg.Type {
		case "ask":
			token, ok := cx.begin()
			if !ok {
				cx.sendError(errAskInProgress.Error())
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer cx.end()
				h.handleAsk(ctx, cx, msg, token, log)
			}()
		case "stop":
			if !cx.requestStop() {
				cx.sendError("no answer is streaming")
				continue
			}
			cx.send(gin.H{"type": "stopping", "timestamp": time.Now().Unix()})
		case "ping":
			cx.send(gin.H{"type": "pong"})
		default:
			cx.sendError("unknown message type")
		}
	}
}

// inboundLabel bounds the metric label to the message types the bridge knows.
func inboundLabel(msgType string) string {
	switch msgType {
	case "ask", "stop", "ping":
		return msgType
	default:
		return "unknown"
	}
}

func (h *Handler) handleAsk(ctx context.Context, cx *connection, msg Message, token *stopsignal.Token, log *zap.Logger) {
	q, err := client.ParseQuestion(msg.Text, msg.Tone, msg.Plugins)
	if err != nil {
		cx.sendError(err.Error())
		return
	}
	q.ImageURL = msg.ImageURL
	q.Locale = msg.Locale
	q.Region = msg.Region

	var conv *conversation.Conversation
	if msg.ConversationID == "" {
		if conv, err = h.client.Create(ctx); err != nil {
			cx.sendError(err.Error())
			return
		}
	} else {
		conv = h.client.Conversation(msg.ConversationID)
	}

	s, err := h.client.Ask(ctx, conv, q, token)
	if err != nil {
		cx.sendError(err.Error())
		return
	}
	defer s.Close()

	cx.send(gin.H{
		"type":            "start",
		"conversation_id": conv.ID,
		"session_id":      s.ID().String(),
		"timestamp":       time.Now().Unix(),
	})

	var summary aggregate.Summary
	for ev, err := range s.Events(ctx) {
		if err != nil {
			log.Warn("answer stream failed", zap.Stringer("session_id", s.ID()), zap.Error(err))
			cx.sendError(err.Error())
			return
		}
		summary.Add(ev)
		if cx.send(gin.H{
			"type":      "event",
			"kind":      ev.Kind.String(),
			"event":     ev,
			"timestamp": time.Now().Unix(),
		}) != nil {
			return
		}
	}

	cx.send(gin.H{
		"type":      "complete",
		"stopped":   token.IsSet(),
		"summary":   summary.String(),
		"timestamp": time.Now().Unix(),
	})
}

// begin claims the connection for one answer.
func (cx *connection) begin() (*stopsignal.Token, bool) {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if cx.stop != nil {
		return nil, false
	}
	token, trigger := stopsignal.New()
	cx.stop = trigger
	return token, true
}

func (cx *connection) end() {
	cx.mu.Lock()
	cx.stop = nil
	cx.mu.Unlock()
}

func (cx *connection) requestStop() bool {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if cx.stop == nil {
		return false
	}
	cx.stop()
	return true
}

func (cx *connection) send(data gin.H) error {
	cx.writeMu.Lock()
	defer cx.writeMu.Unlock()
	if t, ok := data["type"].(string); ok {
		cx.metrics.RecordWSMessage("out", t)
	}
	return cx.conn.WriteJSON(data)
}

func (cx *connection) sendError(msg string) error {
	return cx.send(gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
