package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	headerPlainSignature     = "X-Sydney-Conversationsignature"
	headerEncryptedSignature = "X-Sydney-Encryptedconversationsignature"
	createPath               = "/turing/conversation/create"
)

// ErrSignatureFetchFailed is returned when the service does not issue both tokens.
var ErrSignatureFetchFailed = errors.New("signature fetch failed")

// Signer fetches and caches conversation signatures. Concurrent Ensure
// calls for one conversation share a single request.
type Signer struct {
	client        *httpclient.Client
	bundleVersion string
	group         singleflight.Group
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// NewSigner creates a signer on a client that carries the session cookie.
func NewSigner(client *httpclient.Client, bundleVersion string, logger *zap.Logger, metrics *monitoring.Metrics) *Signer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{
		client:        client,
		bundleVersion: bundleVersion,
		logger:        logger,
		metrics:       metrics,
	}
}

// Ensure returns the cached tokens of c, fetching them once if absent.
func (s *Signer) Ensure(ctx context.Context, c *Conversation) (Signatures, error) {
	if sigs, ok := c.Signatures(); ok {
		s.metrics.RecordSignatureLookup("hit")
		return sigs, nil
	}
	s.metrics.RecordSignatureLookup("miss")

	ch := s.group.DoChan(c.ID, func() (interface{}, error) {
		if sigs, ok := c.Signatures(); ok {
			return sigs, nil
		}
		// Detached so one caller giving up does not fail the others.
		sigs, err := s.fetch(context.WithoutCancel(ctx), c.ID)
		if err != nil {
			return Signatures{}, err
		}
		c.Cache().Set(sigs)
		return sigs, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			s.metrics.RecordSignatureLookup("error")
			return Signatures{}, res.Err
		}
		return res.Val.(Signatures), nil
	case <-ctx.Done():
		return Signatures{}, ctx.Err()
	}
}

// Plain returns the token used as a bearer for REST calls.
func (s *Signer) Plain(ctx context.Context, c *Conversation) (string, error) {
	sigs, err := s.Ensure(ctx, c)
	return sigs.Plain, err
}

// Encrypted returns the token used to open the hub.
func (s *Signer) Encrypted(ctx context.Context, c *Conversation) (string, error) {
	sigs, err := s.Ensure(ctx, c)
	return sigs.Encrypted, err
}

func (s *Signer) fetch(ctx context.Context, conversationID string) (Signatures, error) {
	req, err := s.client.Request(ctx)
	if err != nil {
		return Signatures{}, fmt.Errorf("%w: %w", ErrSignatureFetchFailed, err)
	}
	resp, err := s.client.Execute("signature", func() (*resty.Response, error) {
		return req.SetQueryParams(map[string]string{
			"conversationId": conversationID,
			"bundleVersion":  s.bundleVersion,
		}).Get(createPath)
	})
	if err != nil {
		return Signatures{}, fmt.Errorf("%w: %w", ErrSignatureFetchFailed, err)
	}

	sigs, err := signaturesFromResponse(resp)
	if err != nil {
		return Signatures{}, err
	}
	s.logger.Debug("conversation signatures fetched", zap.String("conversation_id", conversationID))
	return sigs, nil
}

func signaturesFromResponse(resp *resty.Response) (Signatures, error) {
	if !resp.IsSuccess() {
		return Signatures{}, fmt.Errorf("%w: status %d", ErrSignatureFetchFailed, resp.StatusCode())
	}
	sigs := Signatures{
		Plain:     resp.Header().Get(headerPlainSignature),
		Encrypted: resp.Header().Get(headerEncryptedSignature),
	}
	if sigs.Plain == "" {
		return Signatures{}, fmt.Errorf("%w: missing %s header", ErrSignatureFetchFailed, headerPlainSignature)
	}
	if sigs.Encrypted == "" {
		return Signatures{}, fmt.Errorf("%w: missing %s header", ErrSignatureFetchFailed, headerEncryptedSignature)
	}
	return sigs, nil
}
