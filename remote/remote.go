// Package remote wires the HTTP-backed implementations into an iam.Client.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/apiclient"
	"github.com/chimerakang/iam-session-go/audit"
	"github.com/chimerakang/iam-session-go/authapi"
	"github.com/chimerakang/iam-session-go/authz"
	"github.com/chimerakang/iam-session-go/metrics"
	"github.com/chimerakang/iam-session-go/session"
)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	registerer prometheus.Registerer
	authorizer *authz.Authorizer
	audit      []audit.Option
}

// Option configures NewClient.
type Option func(*options)

// WithHTTPClient sets the HTTP client. Its cookie jar, if any, holds the
// session cookies.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer sets where metrics are registered when enabled. Without it
// every client registers into its own fresh registry, so several clients can
// live in one process. Pass prometheus.DefaultRegisterer to expose them on the
// global handler; only one such client may then exist per process.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithAuthorizer replaces the default role to permission mapping.
func WithAuthorizer(a *authz.Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithAuditOptions adds audit handlers. Audit events always go to the logger.
func WithAuditOptions(opts ...audit.Option) Option {
	return func(o *options) { o.audit = append(o.audit, opts...) }
}

// NewClient builds an iam.Client talking to cfg.BaseURL. The session starts
// its initial check in the background; wait on Ready to observe it.
func NewClient(ctx context.Context, cfg iam.Config, opts ...Option) (*iam.Client, error) {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	if o.authorizer == nil {
		o.authorizer = authz.New()
	}

	hc := o.httpClient
	if hc == nil {
		jar, err := apiclient.NewJar()
		if err != nil {
			return nil, fmt.Errorf("iam: create cookie jar: %w", err)
		}
		hc = &http.Client{Jar: jar}
	}
	if cfg.RequestTimeout > 0 && hc.Timeout == 0 {
		c := *hc
		c.Timeout = cfg.RequestTimeout
		hc = &c
	}

	mt := metrics.NewWithRegistry(cfg.MetricsEnabled, o.registerer)
	auditLog := audit.New(cfg.AuditBufferSize, append([]audit.Option{audit.WithSlogHandler(o.logger)}, o.audit...)...)

	api := authapi.New(apiclient.New(cfg.BaseURL,
		apiclient.WithHTTPClient(hc),
		apiclient.WithLogger(o.logger),
		apiclient.WithObserver(mt.ObserveRequest),
	))
	sess := session.New(ctx, api,
		session.WithLogger(o.logger),
		session.WithAuthorizer(o.authorizer),
		session.WithMetrics(mt),
		session.WithAudit(auditLog),
	)

	o.logger.Info("iam client configured", "base_url", cfg.BaseURL, "metrics", cfg.MetricsEnabled)

	return iam.NewClient(cfg,
		iam.WithLogger(o.logger),
		iam.WithSessionService(sess),
		iam.WithAuthAPI(api),
		iam.WithCloser(auditLog),
	)
}

// Manager returns the concrete session manager of a client built by
// NewClient, for callers that need Ready or Permissions.
func Manager(c *iam.Client) (*session.Manager, bool) {
	m, ok := c.Session().(*session.Manager)
	return m, ok
}
