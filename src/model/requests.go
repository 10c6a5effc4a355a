package cowin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://cdn-api.co-vin.in/api/v2/"

	userAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/56.0.2924.76 Safari/537.36 Mozilla/5.0 (X11; Linux x86_64) Chrome/44.0.2403.157 Thunderstorm/1.0 (Linux)"
	timeout   = 10 * time.Second
)

// Client talks to the CoWIN public API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	HTTPClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.HTTPClient = c }
}

// WithLimiter throttles outgoing requests. The API answers 403 once a caller
// exceeds its quota.
func WithLimiter(l *rate.Limiter) Option {
	return func(client *Client) { client.limiter = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(client *Client) { client.logger = l }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	urlValue, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    urlValue,
		HTTPClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) NewRequest(ctx context.Context, method string, u *url.URL, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(u).String(), body)
	if err != nil {
		return nil, fmt.Errorf("invalid http request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// DoJSON sends request and decodes a 200 response body into v.
func (c *Client) DoJSON(op string, request *http.Request, v interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(request.Context()); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}

	start := time.Now()
	response, err := c.HTTPClient.Do(request)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer response.Body.Close()

	responseBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: 0, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("cowin request",
		zap.String("op", op),
		zap.String("url", request.URL.String()),
		zap.Int("status", response.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if response.StatusCode != http.StatusOK {
		return &TransportError{Op: op, StatusCode: response.StatusCode}
	}

	if err := json.Unmarshal(responseBytes, v); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	return nil
}
