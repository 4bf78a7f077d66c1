package imagegen

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/copilot/internal/events"
)

var (
	ErrRedirectFailed = errors.New("image creation did not redirect")
	ErrPollFailed     = errors.New("could not get image results")
	ErrNoImages       = errors.New("no images found")
	ErrTimedOut       = errors.New("timed out waiting for images")
)

// Handle identifies one generation request on the service.
type Handle struct {
	Prompt    string
	MessageID string
	RequestID string
}

// Generator starts image generations and polls them.
type Generator interface {
	// Start requests a generation and returns its polling handle.
	Start(ctx context.Context, prompt, messageID string) (Handle, error)
	// Poll checks once. done is false while the images are not ready.
	Poll(ctx context.Context, h Handle) (images []events.Image, done bool, err error)
}
