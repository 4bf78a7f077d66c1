package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	createPath  = "/images/create"
	resultsPath = "/images/create/async/results/"
)

// BingGenerator drives the image creator behind the chat service.
type BingGenerator struct {
	client *httpclient.Client
	logger *zap.Logger
}

// NewBingGenerator creates a generator on a client that already carries the
// session cookie.
func NewBingGenerator(client *httpclient.Client, logger *zap.Logger) *BingGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BingGenerator{client: client, logger: logger}
}

func promptQuery(prompt string) string {
	return fmt.Sprintf("prompt='%s'", prompt)
}

// Start submits the prompt and follows the two redirects by hand to find the
// request id.
func (g *BingGenerator) Start(ctx context.Context, prompt, messageID string) (Handle, error) {
	req, err := g.client.NoRedirect(ctx)
	if err != nil {
		return Handle{}, err
	}
	resp, err := g.client.Execute("images_create", func() (*resty.Response, error) {
		return req.SetQueryParams(map[string]string{
			"partner":       "sydney",
			"re":            "1",
			"showselective": "1",
			"sude":          "1",
			"kseed":         "8000",
			"SFX":           "3",
			"q":             promptQuery(prompt),
			"iframeid":      messageID,
		}).Get(createPath)
	})
	if err != nil {
		return Handle{}, fmt.Errorf("create request failed: %w", err)
	}
	location := resp.Header().Get("Location")
	if location == "" {
		return Handle{}, fmt.Errorf("%w: status %d", ErrRedirectFailed, resp.StatusCode())
	}

	req, err = g.client.NoRedirect(ctx)
	if err != nil {
		return Handle{}, err
	}
	resp, err = g.client.Execute("images_redirect", func() (*resty.Response, error) {
		return req.Get(location)
	})
	if err != nil {
		return Handle{}, fmt.Errorf("redirect request failed: %w", err)
	}

	requestID := parseRequestID(resp.Header().Get("Location"))
	if requestID == "" {
		return Handle{}, fmt.Errorf("%w: no request id in redirect", ErrRedirectFailed)
	}

	g.logger.Debug("image generation started",
		zap.String("message_id", messageID),
		zap.String("request_id", requestID))
	return Handle{Prompt: prompt, MessageID: messageID, RequestID: requestID}, nil
}

// parseRequestID takes the value after the last "id=" up to the next '&'.
func parseRequestID(location string) string {
	i := strings.LastIndex(location, "id=")
	if i < 0 {
		return ""
	}
	id, _, _ := strings.Cut(location[i+len("id="):], "&")
	return id
}

// Poll fetches the results page once.
func (g *BingGenerator) Poll(ctx context.Context, h Handle) ([]events.Image, bool, error) {
	req, err := g.client.Request(ctx)
	if err != nil {
		return nil, false, err
	}
	resp, err := g.client.Execute("images_poll", func() (*resty.Response, error) {
		return req.
			SetHeader("Content-Security-Policy", "script-src 'none'").
			SetQueryParam("q", promptQuery(h.Prompt)).
			Get(resultsPath + h.RequestID)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d", ErrPollFailed, resp.StatusCode())
	}

	page := resp.Body()
	if !IsReady(page) {
		return nil, false, nil
	}
	images, err := ParseImages(page)
	if err != nil {
		return nil, true, err
	}
	return images, true, nil
}
