// Package iam provides a Go SDK for the client side of an authentication
// server: a uniform HTTP API client, a typed binding of the auth endpoints,
// and a session state machine with role and permission checks.
//
// Concrete implementations are injected via Option functions. The remote
// package wires the HTTP-backed implementations:
//
//	client, err := remote.NewClient(ctx, iam.Config{BaseURL: "https://app.example.com/api"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	outcome, err := client.Session().Login(ctx, email, password)
package iam

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Client is the main entry point for session operations.
// Service implementations are injected via Option functions.
type Client struct {
	config  Config
	logger  *slog.Logger
	session SessionService
	auth    AuthAPI
	closers []io.Closer
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionService sets the session state machine.
func WithSessionService(s SessionService) Option {
	return func(c *Client) { c.session = s }
}

// WithAuthAPI sets the endpoint binding.
func WithAuthAPI(a AuthAPI) Option {
	return func(c *Client) { c.auth = a }
}

// WithCloser registers a resource released by Close.
func WithCloser(cl io.Closer) Option {
	return func(c *Client) {
		if cl != nil {
			c.closers = append(c.closers, cl)
		}
	}
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Session returns the session state machine, or nil if not configured.
func (c *Client) Session() SessionService { return c.session }

// Auth returns the endpoint binding, or nil if not configured.
func (c *Client) Auth() AuthAPI { return c.auth }

// HealthCheck reports whether the client has the services it needs.
// It does not perform network calls.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.session == nil && c.auth == nil {
		return errors.New("iam: no services configured")
	}
	return nil
}

// Close releases all resources held by the client.
// Injected services that implement io.Closer are closed too.
func (c *Client) Close() error {
	var errs []error
	for _, svc := range []any{c.session, c.auth} {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			errs = append(errs, cl.Close())
		}
	}
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}
