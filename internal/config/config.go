package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all client and server configuration.
type Config struct {
	Bing      BingConfig      `yaml:"bing" toml:"bing"`
	Hub       HubConfig       `yaml:"hub" toml:"hub"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Images    ImageConfig     `yaml:"images" toml:"images"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// BingConfig holds the REST endpoints of the service.
type BingConfig struct {
	BaseURL       string `envconfig:"BING_BASE_URL" yaml:"base_url" toml:"base_url"`
	SydneyURL     string `envconfig:"BING_SYDNEY_URL" yaml:"sydney_url" toml:"sydney_url"`
	BundleVersion string `envconfig:"BING_BUNDLE_VERSION" yaml:"bundle_version" toml:"bundle_version"`
}

// HubConfig holds the streaming hub settings.
type HubConfig struct {
	URL              string        `envconfig:"HUB_URL" yaml:"url" toml:"url"`
	HandshakeTimeout time.Duration `envconfig:"HUB_HANDSHAKE_TIMEOUT" yaml:"handshake_timeout" toml:"handshake_timeout"`
	// ReadTimeout bounds the wait for each inbound frame; zero waits forever.
	ReadTimeout      time.Duration `envconfig:"HUB_READ_TIMEOUT" yaml:"read_timeout" toml:"read_timeout"`
	StopInvocationID string        `envconfig:"HUB_STOP_INVOCATION_ID" yaml:"stop_invocation_id" toml:"stop_invocation_id"`
}

// HTTPConfig holds the upstream HTTP client settings.
type HTTPConfig struct {
	Timeout      time.Duration `envconfig:"HTTP_TIMEOUT" yaml:"timeout" toml:"timeout"`
	RetryCount   int           `envconfig:"HTTP_RETRY_COUNT" yaml:"retry_count" toml:"retry_count"`
	RetryWait    time.Duration `envconfig:"HTTP_RETRY_WAIT" yaml:"retry_wait" toml:"retry_wait"`
	RetryMaxWait time.Duration `envconfig:"HTTP_RETRY_MAX_WAIT" yaml:"retry_max_wait" toml:"retry_max_wait"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `envconfig:"HTTP_RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"`
	UserAgent string  `envconfig:"HTTP_USER_AGENT" yaml:"user_agent" toml:"user_agent"`
}

// ImageConfig holds the image generation polling budgets.
type ImageConfig struct {
	PollInterval   time.Duration `envconfig:"IMAGE_POLL_INTERVAL" yaml:"poll_interval" toml:"poll_interval"`
	InlineAttempts int           `envconfig:"IMAGE_INLINE_ATTEMPTS" yaml:"inline_attempts" toml:"inline_attempts"`
	DrainAttempts  int           `envconfig:"IMAGE_DRAIN_ATTEMPTS" yaml:"drain_attempts" toml:"drain_attempts"`
}

// AuthConfig locates the session cookie.
type AuthConfig struct {
	Cookie     string `envconfig:"COPILOT_COOKIE" yaml:"cookie" toml:"cookie"`
	CookieFile string `envconfig:"COPILOT_COOKIE_FILE" yaml:"cookie_file" toml:"cookie_file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// ServerConfig holds the serve-mode HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" yaml:"host" toml:"host"`
}

// RateLimitConfig holds serve-mode rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
	// Global shares one bucket across all clients instead of one per IP.
	Global bool `envconfig:"RATE_LIMIT_GLOBAL" yaml:"global" toml:"global"`
}

// Load returns Default overlaid with environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Bing: BingConfig{
			BaseURL:       "https://www.bing.com",
			SydneyURL:     "https://sydney.bing.com",
			BundleVersion: "1.1600.1-nodesign2",
		},
		Hub: HubConfig{
			URL:              "wss://sydney.bing.com/sydney/ChatHub",
			HandshakeTimeout: 10 * time.Second,
			ReadTimeout:      2 * time.Minute,
			StopInvocationID: "3",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			RetryCount:   3,
			RetryWait:    1 * time.Second,
			RetryMaxWait: 30 * time.Second,
			RateLimit:    0,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		},
		Images: ImageConfig{
			PollInterval:   1 * time.Second,
			InlineAttempts: 50,
			DrainAttempts:  100,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}

// Validate checks the values the client cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Bing.BaseURL == "" {
		errs = append(errs, errors.New("bing base url is required"))
	}
	if c.Hub.URL == "" {
		errs = append(errs, errors.New("hub url is required"))
	}
	if c.Images.InlineAttempts <= 0 {
		errs = append(errs, errors.New("image inline attempts must be positive"))
	}
	if c.Images.DrainAttempts < c.Images.InlineAttempts {
		errs = append(errs, errors.New("image drain attempts must not be below inline attempts"))
	}
	if c.Images.PollInterval <= 0 {
		errs = append(errs, errors.New("image poll interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
