package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
)

const defaultMaxBodyBytes = 16 * 1024

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the bearer token of the current session. An error means
// no session is loaded and the request goes out unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the billing API.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets a client-wide timeout. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithBodyLimit adjusts how many bytes are read from a response body.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// WithTokenSource attaches the session used for bearer authentication.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client talks JSON to the billing backend.
type Client struct {
	logger       zerolog.Logger
	baseURL      string
	httpClient   HTTPClient
	tokens       TokenSource
	maxBodyBytes int64
	now          func() time.Time
}

// Call describes one request. A nil Body sends no request body.
type Call struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Token     string
	RequestID string
	// Anonymous suppresses the session token, e.g. for sign-in.
	Anonymous bool
}

// Response is the raw outcome of a 2xx call.
type Response struct {
	StatusCode int
	Body       []byte
	ReceivedAt time.Time
}

// New constructs a client for the API rooted at baseURL.
func New(baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api client: base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("api client: invalid base url %q", baseURL)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		logger:       logger,
		baseURL:      baseURL,
		httpClient:   &http.Client{},
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Do performs the call. Transport failures are wrapped with ErrNetwork and
// non-2xx responses are returned as *common.ServerError alongside the
// response that carried them.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(call.Path, "/")
	if len(call.Query) > 0 {
		endpoint += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, common.WrapValidation(fmt.Errorf("encode request body: %v", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, endpoint, body)
	if err != nil {
		return nil, common.WrapValidation(fmt.Errorf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.token(call); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if call.RequestID != "" {
		req.Header.Set("X-Request-ID", call.RequestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().
			Str("method", call.Method).
			Str("path", call.Path).
			Err(err).
			Msg("api request failed in transport")
		return nil, common.WrapNetwork(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, common.WrapNetwork(fmt.Errorf("read response body: %w", err))
	}

	out := &Response{StatusCode: resp.StatusCode, Body: raw, ReceivedAt: c.now()}
	c.logger.Debug().
		Str("method", call.Method).
		Str("path", call.Path).
		Int("status_code", resp.StatusCode).
		Msg("api request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &common.ServerError{StatusCode: resp.StatusCode, Message: common.AckMessage(raw)}
	}
	return out, nil
}

func (c *Client) token(call Call) string {
	if call.Anonymous {
		return ""
	}
	if call.Token != "" {
		return call.Token
	}
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token()
	if err != nil {
		return ""
	}
	return token
}

func decode(resp *Response, into any) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fmt.Errorf("%w: empty response body", common.ErrServer)
	}
	if err := json.Unmarshal(resp.Body, into); err != nil {
		return fmt.Errorf("%w: decode response: %v", common.ErrServer, err)
	}
	return nil
}
