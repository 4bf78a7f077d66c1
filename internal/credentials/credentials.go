// Package credentials turns a browser session cookie into the headers the
// service expects.
//
// Two formats are accepted: a raw Cookie header ("a=1; b=2") and the JSON
// array written by browser cookie export extensions.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/bytedance/sonic"
)

// Referer is sent with every request, matching the web client.
const Referer = "https://www.bing.com/search?q=Bing+Ai"

var (
	ErrNoCookie      = errors.New("no cookie configured")
	ErrInvalidCookie = errors.New("invalid cookie")
)

// Credentials holds the Cookie header value.
type Credentials struct {
	cookie string
}

type exportedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FromHeader accepts a raw Cookie header value.
func FromHeader(header string) (*Credentials, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrNoCookie
	}
	if strings.ContainsAny(header, "\r\n") {
		return nil, fmt.Errorf("%w: header contains a line break", ErrInvalidCookie)
	}
	return &Credentials{cookie: header}, nil
}

// FromJSON accepts a browser cookie export: an array of objects with name
// and value fields. Other fields are ignored.
func FromJSON(data []byte) (*Credentials, error) {
	var cookies []exportedCookie
	if err := sonic.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}

	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	if len(pairs) == 0 {
		return nil, ErrNoCookie
	}
	return FromHeader(strings.Join(pairs, ";"))
}

// Load reads a cookie file, which may hold either format.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return FromJSON(data)
	}
	return FromHeader(string(data))
}

// FromConfig prefers the inline cookie over the cookie file.
func FromConfig(cfg config.AuthConfig) (*Credentials, error) {
	switch {
	case cfg.Cookie != "":
		return FromHeader(cfg.Cookie)
	case cfg.CookieFile != "":
		return Load(cfg.CookieFile)
	default:
		return nil, ErrNoCookie
	}
}

// Cookie returns the Cookie header value.
func (c *Credentials) Cookie() string {
	return c.cookie
}

// Headers returns the headers for REST calls.
func (c *Credentials) Headers() map[string]string {
	return map[string]string{
		"Cookie":  c.cookie,
		"Referer": Referer,
	}
}

// HTTPHeader returns the headers for the WebSocket dial.
func (c *Credentials) HTTPHeader() http.Header {
	h := http.Header{}
	for k, v := range c.Headers() {
		h.Set(k, v)
	}
	return h
}

// String hides the cookie value.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials(%d bytes)", len(c.cookie))
}
