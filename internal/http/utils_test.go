package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/GriffinCanCode/copilot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty question", client.ErrEmptyQuestion, http.StatusBadRequest},
		{"no images", fmt.Errorf("%w: blocked", client.ErrImageGeneration), http.StatusUnprocessableEntity},
		{"breaker open", httpclient.ErrUnavailable, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"result error", &conversation.ResultError{Op: "list", Value: "Throttled"}, http.StatusBadGateway},
		{"signature", conversation.ErrSignatureFetchFailed, http.StatusBadGateway},
		{"dial", fmt.Errorf("%w: refused", session.ErrDialFailed), http.StatusBadGateway},
		{"upstream 5xx", &httpclient.StatusError{Endpoint: "chats", Code: 503}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAskRequestQuestion(t *testing.T) {
	req := AskRequest{Text: "hi", Tone: "creative", Plugins: []string{"Search"}, Locale: "en-GB", Region: "GB"}
	q, err := req.Question()
	require.NoError(t, err)
	assert.Equal(t, protocol.ToneCreative, q.Tone)
	assert.Equal(t, "en-GB", q.Locale)
	assert.Equal(t, "GB", q.Region)
	assert.Len(t, q.Plugins, 1)

	_, err = AskRequest{Text: "hi", Tone: "loud"}.Question()
	assert.Error(t, err)
}
