package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("bing unavailable: circuit breaker open")

// StatusError reports a 5xx answer from an upstream endpoint.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	RateLimit    float64
	UserAgent    string
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
}

// OptionsFromConfig maps the HTTP section of the config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:      cfg.Bing.BaseURL,
		Timeout:      cfg.HTTP.Timeout,
		RetryCount:   cfg.HTTP.RetryCount,
		RetryWait:    cfg.HTTP.RetryWait,
		RetryMaxWait: cfg.HTTP.RetryMaxWait,
		RateLimit:    cfg.HTTP.RateLimit,
		UserAgent:    cfg.HTTP.UserAgent,
	}
}

// Client wraps resty with retries, gzip, rate limiting and a circuit breaker.
// Redirects are followed by Request and never followed by NoRedirect.
type Client struct {
	resty      *resty.Client
	noRedirect *resty.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	baseURL    string
	mu         sync.RWMutex
}

// New creates a Client. Retries happen in the transport, so resty's own
// retry loop stays off.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	c := &Client{
		resty:      newResty(newTransport(opts, logger, true), opts),
		noRedirect: newResty(newTransport(opts, logger, false), opts),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		metrics:    opts.Metrics,
		logger:     logger,
		baseURL:    opts.BaseURL,
	}
	c.noRedirect.SetRedirectPolicy(resty.RedirectPolicyFunc(stopRedirects))
	c.SetRateLimit(opts.RateLimit)

	c.breaker = resilience.New("bing", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return c
}

// newTransport builds the retrying transport. The inner http.Client performs
// the actual round trips, so it is where redirects are followed or refused.
func newTransport(opts Options, logger *zap.Logger, followRedirects bool) http.RoundTripper {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryCount
	retryClient.RetryWaitMin = opts.RetryWait
	retryClient.RetryWaitMax = opts.RetryMaxWait
	retryClient.Logger = leveledLogger{logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Transport = gzhttp.Transport(retryClient.HTTPClient.Transport)
	if !followRedirects {
		retryClient.HTTPClient.CheckRedirect = stopRedirects
	}
	return &retryablehttp.RoundTripper{Client: retryClient}
}

func stopRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func newResty(transport http.RoundTripper, opts Options) *resty.Client {
	r := resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if opts.BaseURL != "" {
		r.SetBaseURL(opts.BaseURL)
	}
	if opts.UserAgent != "" {
		r.SetHeader("User-Agent", opts.UserAgent)
	}
	return r
}

// BaseURL returns the REST base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader adds a default header to every request.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetHeader(key, value)
	c.noRedirect.SetHeader(key, value)
}

// SetHeaders adds several default headers.
func (c *Client) SetHeaders(headers map[string]string) {
	for k, v := range headers {
		c.SetHeader(k, v)
	}
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request returns a redirect-following request after waiting on the limiter.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	return c.request(ctx, c.resty)
}

// NoRedirect returns a request whose 3xx answers are handed back unread.
func (c *Client) NoRedirect(ctx context.Context) (*resty.Request, error) {
	return c.request(ctx, c.noRedirect)
}

func (c *Client) request(ctx context.Context, r *resty.Client) (*resty.Request, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, ErrUnavailable
	}

	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return r.R().SetContext(ctx), nil
}

// Execute runs fn through the breaker and records it under endpoint.
// A 5xx answer counts as a failure and is returned as *StatusError.
func (c *Client) Execute(endpoint string, fn func() (*resty.Response, error)) (*resty.Response, error) {
	timer := monitoring.NewTimer(c.metrics, endpoint)

	resp, err := resilience.Call(c.breaker, func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, &StatusError{Endpoint: endpoint, Code: resp.StatusCode()}
		}
		return resp, nil
	})
	timer.StopErr(err)

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if err != nil {
		c.logger.Debug("upstream call failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	return resp, err
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// BreakerCounts returns circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.breaker.Counts()
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
