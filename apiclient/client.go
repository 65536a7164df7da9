// Package apiclient provides the generic request wrapper used to talk to the
// authentication server.
//
// Every call returns a Result; HTTP failures and transport failures are
// reported in the Result and never as a Go error or panic. Session cookies
// are always sent: the underlying *http.Client is given a cookie jar when it
// has none.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Observer is notified after every request. Status is 0 for transport failures.
type Observer func(method, endpoint string, status int, elapsed time.Duration)

// Client sends JSON requests relative to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	logger     *slog.Logger
	observer   Observer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a header sent with every request. Per-call headers win.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithLogger sets a structured logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver sets a hook notified after every request.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewJar returns a cookie jar that honours public suffix domain rules.
func NewJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Jar == nil {
		// cookiejar.New never returns a non-nil error.
		jar, _ := NewJar()
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Do sends one request and decodes a JSON response into T.
func Do[T any](ctx context.Context, c *Client, method, endpoint string, body any, headers map[string]string) Result[T] {
	path := normalizeEndpoint(endpoint)
	start := time.Now()
	res := send[T](ctx, c, method, path, body, headers)
	elapsed := time.Since(start)

	c.logger.DebugContext(ctx, "api request",
		"method", method, "endpoint", path, "status", res.Status, "duration", elapsed)
	if c.observer != nil {
		c.observer(method, path, res.Status, elapsed)
	}
	return res
}

// Get sends a GET request.
func Get[T any](ctx context.Context, c *Client, endpoint string) Result[T] {
	return Do[T](ctx, c, http.MethodGet, endpoint, nil, nil)
}

// Post sends a POST request with body.
func Post[T any](ctx context.Context, c *Client, endpoint string, body any) Result[T] {
	return Do[T](ctx, c, http.MethodPost, endpoint, body, nil)
}

// Put sends a PUT request with body.
func Put[T any](ctx context.Context, c *Client, endpoint string, body any) Result[T] {
	return Do[T](ctx, c, http.MethodPut, endpoint, body, nil)
}

// Patch sends a PATCH request with body.
func Patch[T any](ctx context.Context, c *Client, endpoint string, body any) Result[T] {
	return Do[T](ctx, c, http.MethodPatch, endpoint, body, nil)
}

// Delete sends a DELETE request.
func Delete[T any](ctx context.Context, c *Client, endpoint string) Result[T] {
	return Do[T](ctx, c, http.MethodDelete, endpoint, nil, nil)
}

func send[T any](ctx context.Context, c *Client, method, path string, body any, headers map[string]string) Result[T] {
	reader, err := encodeBody(body)
	if err != nil {
		return Result[T]{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result[T]{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result[T]{Error: err.Error()}
	}
	defer resp.Body.Close()

	// A truncated body is treated like a non-JSON body.
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result[T]{Error: failureMessage(raw, resp.StatusCode), Status: resp.StatusCode}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Result[T]{Status: resp.StatusCode}
	}
	var data T
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return Result[T]{Status: resp.StatusCode}
	}
	return Result[T]{Data: &data, Status: resp.StatusCode}
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// failureMessage prefers the "message" field of a JSON object body. A list
// of messages, as validation errors often carry, is joined with "; ".
func failureMessage(raw []byte, status int) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return GenericMessage(status)
	}
	var msg string
	if err := json.Unmarshal(body["message"], &msg); err == nil && msg != "" {
		return msg
	}
	var msgs []string
	if err := json.Unmarshal(body["message"], &msgs); err == nil {
		msgs = slices.DeleteFunc(msgs, func(m string) bool { return m == "" })
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return GenericMessage(status)
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "/") {
		return endpoint
	}
	return "/" + endpoint
}
