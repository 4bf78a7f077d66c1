package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/copilot/internal/aggregate"
	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	client  *client.Client
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(c *client.Client, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{client: c, metrics: metrics, logger: logger}
}

// ConversationView is the JSON shape of a conversation.
type ConversationView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Tone      string     `json:"tone,omitempty"`
	Plugins   []string   `json:"plugins,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func viewOf(conv *conversation.Conversation) ConversationView {
	meta := conv.Meta()
	v := ConversationView{ID: conv.ID, Name: meta.Name, Tone: meta.Tone}
	for _, p := range meta.Plugins {
		v.Plugins = append(v.Plugins, p.Name())
	}
	if !meta.CreatedAt.IsZero() {
		created := meta.CreatedAt
		v.CreatedAt = &created
	}
	if !meta.UpdatedAt.IsZero() {
		updated := meta.UpdatedAt
		v.UpdatedAt = &updated
	}
	return v
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Copilot bridge (Go)",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"metrics":       h.metrics.GetSnapshot(),
		"upstream":      gin.H{"breaker": h.client.HTTP().BreakerState().String()},
		"conversations": h.client.Conversations().Registry().Len(),
	})
}

// ListConversations lists the account's conversations
func (h *Handlers) ListConversations(c *gin.Context) {
	convs, err := h.client.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, viewOf(conv))
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": views,
		"count":         len(views),
	})
}

// CreateConversation starts a new conversation
func (h *Handlers) CreateConversation(c *gin.Context) {
	conv, err := h.client.Create(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(conv))
}

// RenameConversation changes a conversation's name
func (h *Handlers) RenameConversation(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv := h.client.Conversation(c.Param("id"))
	if err := h.client.Rename(c.Request.Context(), conv, req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

// DeleteConversation removes a conversation
func (h *Handlers) DeleteConversation(c *gin.Context) {
	conv := h.client.Conversation(c.Param("id"))
	if err := h.client.Delete(c.Request.Context(), conv); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteConversations removes several conversations at once
func (h *Handlers) DeleteConversations(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.client.DeleteMany(c.Request.Context(), req.IDs...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Messages returns a conversation's stored history
func (h *Handlers) Messages(c *gin.Context) {
	conv := h.client.Conversation(c.Param("id"))
	messages, err := h.client.Messages(c.Request.Context(), conv)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.ID,
		"messages":        messages,
	})
}

// AskRequest is the body of POST /api/ask and of the ask WebSocket message.
type AskRequest struct {
	ConversationID string   `json:"conversation_id"`
	Text           string   `json:"text" binding:"required"`
	Tone           string   `json:"tone"`
	Plugins        []string `json:"plugins"`
	ImageURL       string   `json:"image_url"`
	Locale         string   `json:"locale"`
	Region         string   `json:"region"`
}

// Question converts the request to a client question.
func (r AskRequest) Question() (client.Question, error) {
	q, err := client.ParseQuestion(r.Text, r.Tone, r.Plugins)
	if err != nil {
		return q, err
	}
	q.ImageURL = r.ImageURL
	q.Locale = r.Locale
	q.Region = r.Region
	return q, nil
}

// Ask streams an answer as server-sent events named after the event kind.
// The stream opens with "start" and ends with "done" carrying the summary,
// or with "error".
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := req.Question()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var conv *conversation.Conversation
	if req.ConversationID == "" {
		if conv, err = h.client.Create(ctx); err != nil {
			respondError(c, err)
			return
		}
	} else {
		conv = h.client.Conversation(req.ConversationID)
	}

	s, err := h.client.Ask(ctx, conv, q, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	defer s.Close()

	log := h.logger.With(
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Stringer("session_id", s.ID()),
	)
	log.Debug("ask stream opened", zap.Stringer("conversation", conv))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("start", gin.H{"conversation_id": conv.ID, "session_id": s.ID().String()})
	c.Writer.Flush()

	var summary aggregate.Summary
	for ev, err := range s.Events(ctx) {
		if err != nil {
			log.Warn("ask stream failed", zap.Error(err))
			c.SSEvent("error", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		summary.Add(ev)
		c.SSEvent(ev.Kind.String(), ev)
		c.Writer.Flush()
	}

	c.SSEvent("done", gin.H{"summary": summary.String()})
	c.Writer.Flush()
}

// DrawImage generates images for a prompt
func (h *Handlers) DrawImage(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.client.DrawImage(c.Request.Context(), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}
