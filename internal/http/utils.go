package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/session"
	"github.com/gin-gonic/gin"
)

// statusFor maps an upstream error to the status returned to our caller.
func statusFor(err error) int {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, client.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrImageGeneration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, httpclient.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, conversation.ErrRequestFailed),
		errors.Is(err, conversation.ErrSignatureFetchFailed),
		errors.Is(err, session.ErrDialFailed),
		errors.Is(err, session.ErrHandshakeFailed),
		errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
