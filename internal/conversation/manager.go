package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/copilot/internal/dispatch"
	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/imagegen"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	listBundleVersion = "1.1626.0"

	userConsentPath = "/turing/userconsent"
	chatsPath       = "/turing/conversation/chats"
	deletePath      = "/sydney/DeleteSingleConversation"
	deleteManyPath  = "/sydney/DeleteConversations"
	renamePath      = "/sydney/RenameChat"
	historyPath     = "/sydney/GetConversation"

	// UserImageName names an image the user attached to a message.
	UserImageName = "user_image_attachment.jpg"
)

var historyOptionsSets = []string{"autosave", "savemem", "uprofupd", "uprofgen"}

// ErrRequestFailed is wrapped by every failed management call.
var ErrRequestFailed = errors.New("conversation request failed")

// ResultError is a management call the service answered with a non-Success result.
type ResultError struct {
	Op      string
	Value   string
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Value)
	}
	return fmt.Sprintf("%s failed: %s: %s", e.Op, e.Value, e.Message)
}

func (e *ResultError) Unwrap() error {
	return ErrRequestFailed
}

// HistoryMessage is one stored message of a conversation.
type HistoryMessage struct {
	Author           string          `json:"author"`
	Text             string          `json:"text"`
	Images           []events.Image  `json:"images,omitempty"`
	Sources          []events.Source `json:"sources,omitempty"`
	SuggestedReplies []string        `json:"suggested_replies,omitempty"`
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// SydneyURL is the host of the authenticated conversation endpoints.
	SydneyURL     string
	BundleVersion string
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
}

// Manager performs conversation management calls and keeps the registry of
// known conversations.
type Manager struct {
	client        *httpclient.Client
	signer        *Signer
	registry      *Registry
	sydneyURL     string
	bundleVersion string
	logger        *zap.Logger

	mu       sync.RWMutex
	clientID string
}

// NewManager creates a manager on a client that carries the session cookie.
func NewManager(client *httpclient.Client, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SydneyURL == "" {
		opts.SydneyURL = "https://sydney.bing.com"
	}
	if opts.BundleVersion == "" {
		opts.BundleVersion = "1.1600.1-nodesign2"
	}
	logger = logger.With(zap.String("component", "conversation"))
	return &Manager{
		client:        client,
		signer:        NewSigner(client, opts.BundleVersion, logger, opts.Metrics),
		registry:      NewRegistry(),
		sydneyURL:     strings.TrimRight(opts.SydneyURL, "/"),
		bundleVersion: opts.BundleVersion,
		logger:        logger,
	}
}

// Signer returns the signature fetcher shared with streaming sessions.
func (m *Manager) Signer() *Signer {
	return m.signer
}

// Registry returns the known conversations.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Get returns the registered conversation for id, creating an entry if needed.
func (m *Manager) Get(id string) *Conversation {
	return m.registry.Get(id)
}

// ClientID returns the participant id of the account, fetching it once.
func (m *Manager) ClientID(ctx context.Context) (string, error) {
	m.mu.RLock()
	id := m.clientID
	m.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	var out struct {
		ClientID string           `json:"clientId"`
		Result   *protocol.Result `json:"result"`
	}
	_, err := m.call(ctx, "userconsent", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"bundleVersion":         listBundleVersion,
			"isStartOfConversation": "true",
		}).Get(userConsentPath)
	})
	if err != nil {
		return "", err
	}
	if err := checkResult("get client id", out.Result); err != nil {
		return "", err
	}
	m.setClientID(out.ClientID)
	return out.ClientID, nil
}

func (m *Manager) setClientID(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	m.clientID = id
	m.mu.Unlock()
}

type chatEntry struct {
	ConversationID string            `json:"conversationId"`
	ChatName       *string           `json:"chatName"`
	Tone           *string           `json:"tone"`
	CreateTimeUTC  *int64            `json:"createTimeUtc"`
	UpdateTimeUTC  *int64            `json:"updateTimeUtc"`
	Plugins        []protocol.Plugin `json:"plugins"`
}

func (e chatEntry) conversation() *Conversation {
	meta := Metadata{Plugins: e.Plugins}
	if e.ChatName != nil {
		meta.Name = *e.ChatName
	}
	if e.Tone != nil {
		meta.Tone = *e.Tone
	}
	if e.CreateTimeUTC != nil {
		meta.CreatedAt = time.UnixMilli(*e.CreateTimeUTC).UTC()
	}
	if e.UpdateTimeUTC != nil {
		meta.UpdatedAt = time.UnixMilli(*e.UpdateTimeUTC).UTC()
	}
	c := New(e.ConversationID)
	c.SetMeta(meta)
	return c
}

// List fetches the account's conversations and records the client id.
func (m *Manager) List(ctx context.Context) ([]*Conversation, error) {
	var out struct {
		Chats    []chatEntry      `json:"chats"`
		ClientID string           `json:"clientId"`
		Result   *protocol.Result `json:"result"`
	}
	_, err := m.call(ctx, "chats", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("bundleVersion", listBundleVersion).Get(chatsPath)
	})
	if err != nil {
		return nil, err
	}
	if err := checkResult("list conversations", out.Result); err != nil {
		return nil, err
	}
	m.setClientID(out.ClientID)

	convs := make([]*Conversation, 0, len(out.Chats))
	for _, entry := range out.Chats {
		convs = append(convs, m.registry.Put(entry.conversation()))
	}
	return convs, nil
}

// Create starts a new empty conversation. The signatures issued with it are
// cached when both are present.
func (m *Manager) Create(ctx context.Context) (*Conversation, error) {
	var out struct {
		ConversationID string           `json:"conversationId"`
		ClientID       string           `json:"clientId"`
		Result         *protocol.Result `json:"result"`
	}
	resp, err := m.call(ctx, "create", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("bundleVersion", m.bundleVersion).Get(createPath)
	})
	if err != nil {
		return nil, err
	}
	if out.Result != nil && !out.Result.OK() {
		return nil, &ResultError{Op: "create conversation", Value: out.Result.Value, Message: out.Result.Message}
	}
	if out.ConversationID == "" {
		return nil, fmt.Errorf("%w: create conversation: empty conversation id", ErrRequestFailed)
	}
	m.setClientID(out.ClientID)

	c := m.registry.Get(out.ConversationID)
	c.Cache().Set(Signatures{
		Plain:     resp.Header().Get(headerPlainSignature),
		Encrypted: resp.Header().Get(headerEncryptedSignature),
	})
	m.logger.Info("conversation created", zap.String("conversation_id", c.ID))
	return c, nil
}

// Rename changes the display name of c.
func (m *Manager) Rename(ctx context.Context, c *Conversation, name string) error {
	clientID, token, err := m.authenticate(ctx, c)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"conversationId": c.ID,
		"participant":    protocol.Participant{ID: clientID},
		"chatName":       name,
		"optionsSets":    historyOptionsSets,
	}
	var out struct {
		ChatName string           `json:"chatName"`
		Result   *protocol.Result `json:"result"`
	}
	_, err = m.call(ctx, "rename", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).SetBody(payload).Post(m.sydneyURL + renamePath)
	})
	if err != nil {
		return err
	}
	if err := checkResult("rename conversation", out.Result); err != nil {
		return err
	}
	if out.ChatName != "" {
		name = out.ChatName
	}
	c.SetName(name)
	return nil
}

// Delete removes c on the service and from the registry.
func (m *Manager) Delete(ctx context.Context, c *Conversation) error {
	clientID, token, err := m.authenticate(ctx, c)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"conversationId": c.ID,
		"participant":    protocol.Participant{ID: clientID},
		"source":         "cib",
		"optionsSets":    historyOptionsSets,
	}
	var out struct {
		ConversationID string           `json:"conversationId"`
		Result         *protocol.Result `json:"result"`
	}
	_, err = m.call(ctx, "delete", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).SetBody(payload).Post(m.sydneyURL + deletePath)
	})
	if err != nil {
		return err
	}
	if err := checkResult("delete conversation", out.Result); err != nil {
		return err
	}
	m.registry.Remove(c.ID)
	m.logger.Info("conversation deleted", zap.String("conversation_id", c.ID))
	return nil
}

// DeleteMany removes several conversations by id and returns the ids the
// service reports as deleted.
func (m *Manager) DeleteMany(ctx context.Context, ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out struct {
		Deleted []string         `json:"conversationIdsDeleted"`
		Result  *protocol.Result `json:"result"`
	}
	_, err := m.call(ctx, "delete_many", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string][]string{"conversationIdsToDelete": ids}).Post(m.sydneyURL + deleteManyPath)
	})
	if err != nil {
		return nil, err
	}
	if err := checkResult("delete conversations", out.Result); err != nil {
		return nil, err
	}
	for _, id := range out.Deleted {
		m.registry.Remove(id)
	}
	return out.Deleted, nil
}

// Messages fetches the stored history of c. Generated images are resolved
// by loading their result pages.
func (m *Manager) Messages(ctx context.Context, c *Conversation) ([]HistoryMessage, error) {
	clientID, token, err := m.authenticate(ctx, c)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []rawMessage `json:"messages"`
	}
	_, err = m.call(ctx, "history", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).SetQueryParams(map[string]string{
			"conversationId": c.ID,
			"source":         "cib",
			"bundleVersion":  m.bundleVersion,
			"participantId":  clientID,
			"traceId":        uuid.NewString(),
		}).Get(m.sydneyURL + historyPath)
	})
	if err != nil {
		return nil, err
	}

	history := make([]HistoryMessage, 0, len(out.Messages))
	for _, raw := range out.Messages {
		msg, ok := raw.history()
		if !ok {
			continue
		}
		if msg.Author == "bot" && raw.isImage() {
			for _, page := range raw.persistentURLs() {
				images, err := m.pageImages(ctx, page)
				if err != nil {
					return nil, err
				}
				msg.Images = append(msg.Images, images...)
			}
		}
		history = append(history, msg)
	}
	return history, nil
}

func (m *Manager) pageImages(ctx context.Context, pageURL string) ([]events.Image, error) {
	req, err := m.client.Request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Execute("history_images", func() (*resty.Response, error) {
		return req.Get(pageURL)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load image page: %w", ErrRequestFailed, err)
	}
	doc, err := imagegen.LoadHTML(resp.Body())
	if err != nil {
		if errors.Is(err, imagegen.ErrEmptyPage) {
			return nil, nil
		}
		return nil, err
	}
	return imagegen.ImagesFromLinks(imagegen.ExtractImageLinks(doc)), nil
}

// authenticate returns the client id and the bearer token for c.
func (m *Manager) authenticate(ctx context.Context, c *Conversation) (string, string, error) {
	clientID, err := m.ClientID(ctx)
	if err != nil {
		return "", "", err
	}
	token, err := m.signer.Plain(ctx, c)
	if err != nil {
		return "", "", err
	}
	return clientID, token, nil
}

// call runs one JSON request and decodes the body into out.
func (m *Manager) call(ctx context.Context, endpoint string, out interface{}, fn func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	req, err := m.client.Request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Execute(endpoint, func() (*resty.Response, error) {
		return fn(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, endpoint, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrRequestFailed, endpoint, resp.StatusCode())
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %w", ErrRequestFailed, endpoint, err)
	}
	return resp, nil
}

func checkResult(op string, r *protocol.Result) error {
	if r == nil {
		return &ResultError{Op: op, Value: "missing result"}
	}
	if !r.OK() {
		return &ResultError{Op: op, Value: r.Value, Message: r.Message}
	}
	return nil
}

// rawMessage keeps the history fields whose JSON kind decides whether the
// message is shown.
type rawMessage struct {
	Author             json.RawMessage `json:"author"`
	Text               json.RawMessage `json:"text"`
	ContentType        json.RawMessage `json:"contentType"`
	Scores             json.RawMessage `json:"scores"`
	SuggestedResponses json.RawMessage `json:"suggestedResponses"`
	AdaptiveCards      json.RawMessage `json:"adaptiveCards"`
	SourceAttributions json.RawMessage `json:"sourceAttributions"`
	ImageURL           json.RawMessage `json:"imageUrl"`
	OriginalImageURL   json.RawMessage `json:"originalImageUrl"`
}

// visible reports whether the message carries scores, suggested responses
// or typed adaptive cards. Other entries are internal bookkeeping.
func (r rawMessage) visible() bool {
	if isArray(r.Scores) || isArray(r.SuggestedResponses) {
		return true
	}
	_, typed := rawString(r.ContentType)
	return typed && !isNull(r.AdaptiveCards)
}

func (r rawMessage) history() (HistoryMessage, bool) {
	if !r.visible() {
		return HistoryMessage{}, false
	}
	author, ok := rawString(r.Author)
	if !ok {
		return HistoryMessage{}, false
	}
	text, ok := rawString(r.Text)
	if !ok {
		return HistoryMessage{}, false
	}

	msg := HistoryMessage{Author: author, Text: text}
	var sources []protocol.SourceAttribution
	if isArray(r.SourceAttributions) && sonic.Unmarshal(r.SourceAttributions, &sources) == nil {
		msg.Sources = dispatch.ConvertSources(sources)
	}
	var replies []protocol.SuggestedResponse
	if isArray(r.SuggestedResponses) && sonic.Unmarshal(r.SuggestedResponses, &replies) == nil {
		msg.SuggestedReplies = dispatch.ConvertReplies(replies)
	}
	if author == "user" {
		url, ok := rawString(r.ImageURL)
		if !ok {
			url, ok = rawString(r.OriginalImageURL)
		}
		if ok {
			msg.Images = []events.Image{{Name: UserImageName, URL: url}}
		}
	}
	return msg, true
}

func (r rawMessage) isImage() bool {
	typ, _ := rawString(r.ContentType)
	return typ == "IMAGE"
}

func (r rawMessage) persistentURLs() []string {
	var cards []struct {
		Body []struct {
			PersistentURL json.RawMessage `json:"persistentUrl"`
		} `json:"body"`
	}
	if !isArray(r.AdaptiveCards) || sonic.Unmarshal(r.AdaptiveCards, &cards) != nil {
		return nil
	}
	var urls []string
	for _, card := range cards {
		for _, block := range card.Body {
			if url, ok := rawString(block.PersistentURL); ok {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
