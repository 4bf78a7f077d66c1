// Package client is the entry point for talking to Copilot: it owns the
// HTTP client, the conversation manager and the image generator, and opens
// streaming sessions.
package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/aggregate"
	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/credentials"
	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/imagegen"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/GriffinCanCode/copilot/internal/session"
	"github.com/GriffinCanCode/copilot/internal/stopsignal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrImageGeneration is returned by DrawImage when no images were produced.
	ErrImageGeneration = errors.New("image generation failed")
	ErrEmptyQuestion   = errors.New("question text is empty")
)

// Options carries the optional collaborators of a Client.
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Dialer overrides the WebSocket dialer.
	Dialer session.Dialer
	// Images overrides the image generator.
	Images imagegen.Generator
}

// Question is one user turn.
type Question struct {
	Text    string
	Tone    protocol.Tone
	Plugins []protocol.Plugin
	// ImageURL is an image already uploaded to the service.
	ImageURL string
	Locale   string
	Region   string
}

// ParseQuestion builds a question from user-facing names: tone is parsed with
// protocol.ParseTone and each plugin is looked up by display name.
func ParseQuestion(text, tone string, plugins []string) (Question, error) {
	if strings.TrimSpace(text) == "" {
		return Question{}, ErrEmptyQuestion
	}
	t, err := protocol.ParseTone(tone)
	if err != nil {
		return Question{}, err
	}
	q := Question{Text: text, Tone: t}
	for _, name := range plugins {
		p, ok := protocol.PluginByName(name)
		if !ok {
			return Question{}, fmt.Errorf("unknown plugin %q", name)
		}
		q.Plugins = append(q.Plugins, p)
	}
	return q, nil
}

// Client talks to Copilot on behalf of one account.
type Client struct {
	cfg           *config.Config
	creds         *credentials.Credentials
	http          *httpclient.Client
	conversations *conversation.Manager
	images        imagegen.Generator
	dialer        session.Dialer
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// New creates a client for the account identified by creds.
func New(cfg *config.Config, creds *credentials.Credentials, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, credentials.ErrNoCookie
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpOpts := httpclient.OptionsFromConfig(cfg)
	httpOpts.Logger = logger.With(zap.String("component", "httpclient"))
	httpOpts.Metrics = opts.Metrics
	hc := httpclient.New(httpOpts)
	hc.SetHeaders(creds.Headers())

	images := opts.Images
	if images == nil {
		images = imagegen.NewBingGenerator(hc, logger.With(zap.String("component", "imagegen")))
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = session.NewWebSocketDialer(cfg.Hub.HandshakeTimeout)
	}

	return &Client{
		cfg:   cfg,
		creds: creds,
		http:  hc,
		conversations: conversation.NewManager(hc, conversation.ManagerOptions{
			SydneyURL:     cfg.Bing.SydneyURL,
			BundleVersion: cfg.Bing.BundleVersion,
			Logger:        logger,
			Metrics:       opts.Metrics,
		}),
		images:  images,
		dialer:  dialer,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Conversations returns the conversation manager.
func (c *Client) Conversations() *conversation.Manager {
	return c.conversations
}

// HTTP returns the upstream HTTP client.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// ClientID returns the participant id of the account.
func (c *Client) ClientID(ctx context.Context) (string, error) {
	return c.conversations.ClientID(ctx)
}

// List returns the account's conversations.
func (c *Client) List(ctx context.Context) ([]*conversation.Conversation, error) {
	return c.conversations.List(ctx)
}

// Create starts a new conversation.
func (c *Client) Create(ctx context.Context) (*conversation.Conversation, error) {
	return c.conversations.Create(ctx)
}

// Conversation returns the registered conversation with id.
func (c *Client) Conversation(id string) *conversation.Conversation {
	return c.conversations.Get(id)
}

// Rename changes the name of conv.
func (c *Client) Rename(ctx context.Context, conv *conversation.Conversation, name string) error {
	return c.conversations.Rename(ctx, conv, name)
}

// Delete removes conv.
func (c *Client) Delete(ctx context.Context, conv *conversation.Conversation) error {
	return c.conversations.Delete(ctx, conv)
}

// DeleteMany removes conversations by id.
func (c *Client) DeleteMany(ctx context.Context, ids ...string) ([]string, error) {
	return c.conversations.DeleteMany(ctx, ids...)
}

// Messages returns the stored history of conv.
func (c *Client) Messages(ctx context.Context, conv *conversation.Conversation) ([]conversation.HistoryMessage, error) {
	return c.conversations.Messages(ctx, conv)
}

// Ask opens a streaming session for q in conv. stop is optional; the
// returned session can also be stopped directly.
func (c *Client) Ask(ctx context.Context, conv *conversation.Conversation, q Question, stop *stopsignal.Token) (*session.Session, error) {
	clientID, err := c.conversations.ClientID(ctx)
	if err != nil {
		return nil, err
	}
	request := protocol.NewChatRequest(protocol.RequestParams{
		ConversationID: conv.ID,
		ClientID:       clientID,
		Text:           q.Text,
		Tone:           q.Tone,
		Plugins:        q.Plugins,
		ImageURL:       q.ImageURL,
		Locale:         q.Locale,
		Region:         q.Region,
	})

	return session.Open(ctx, c.conversations.Signer(), conv, request, session.Options{
		HubURL:           c.cfg.Hub.URL,
		Header:           c.creds.HTTPHeader(),
		HandshakeTimeout: c.cfg.Hub.HandshakeTimeout,
		ReadTimeout:      c.cfg.Hub.ReadTimeout,
		StopInvocationID: c.cfg.Hub.StopInvocationID,
		Stop:             stop,
		Dialer:           c.dialer,
		Images:           c.images,
		ImageConfig:      imagegen.PoolConfigFrom(c.cfg.Images),
		Logger:           c.logger,
		Metrics:          c.metrics,
	})
}

// AskPlain is Ask with the answer rendered as text: every text update as it
// arrives and the composed summary last. Calling stop ends the answer early.
func (c *Client) AskPlain(ctx context.Context, conv *conversation.Conversation, q Question) (iter.Seq2[string, error], stopsignal.Trigger, error) {
	s, err := c.Ask(ctx, conv, q, nil)
	if err != nil {
		return nil, nil, err
	}
	return aggregate.Stream(s.Events(ctx)), s.StopFunc(), nil
}

// DrawImage generates images for prompt outside of a conversation, with the
// drain budget from the start.
func (c *Client) DrawImage(ctx context.Context, prompt string) ([]events.Image, error) {
	cfg := imagegen.PoolConfigFrom(c.cfg.Images)
	cfg.InlineAttempts = cfg.DrainAttempts

	ev := imagegen.Generate(ctx, c.images, cfg, prompt, uuid.NewString(), c.logger, c.metrics)
	if ev.Kind != events.KindImages {
		return nil, fmt.Errorf("%w: %s", ErrImageGeneration, strings.TrimPrefix(ev.Text, "Image generation failed: "))
	}
	return ev.Images, nil
}
