// Package ginmw provides Gin HTTP middleware that guards routes with the
// process-wide session.
//
// All middleware functions accept an iam.SessionView, so any session
// implementation can be used (the HTTP-backed session.Manager in
// production, a stub in tests).
package ginmw

import (
	"net/http"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/guard"
	"github.com/gin-gonic/gin"
)

// Context keys for storing IAM data in gin.Context.
const (
	KeyIdentity = "iam_identity"
	KeyUserID   = "iam_user_id"
	KeyRoles    = "iam_roles"
	KeyEmail    = "iam_email"
	KeyDecision = "iam_decision"
)

// identitySource is implemented by sessions that can expose the identity.
type identitySource interface {
	Identity() *iam.Identity
}

// Option configures Protected middleware behavior.
type Option func(*config)

type config struct {
	reqs          iam.Requirements
	dest          guard.Destinations
	excludedPaths map[string]bool
}

// WithRoles requires any one of roles.
func WithRoles(roles ...string) Option {
	return func(cfg *config) { cfg.reqs.Roles = append(cfg.reqs.Roles, roles...) }
}

// WithPermissions requires any one of permissions.
func WithPermissions(permissions ...string) Option {
	return func(cfg *config) { cfg.reqs.Permissions = append(cfg.reqs.Permissions, permissions...) }
}

// WithLoginPath sets where unauthenticated requests are redirected.
func WithLoginPath(path string) Option {
	return func(cfg *config) { cfg.dest.Login = path }
}

// WithUnauthorizedPath sets where requests lacking a role or permission are
// redirected.
func WithUnauthorizedPath(path string) Option {
	return func(cfg *config) { cfg.dest.Unauthorized = path }
}

// WithExcludedPaths sets paths that skip the guard (e.g. the login page).
func WithExcludedPaths(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Protected returns Gin middleware that evaluates the route guard for every
// request. While the session is loading it responds 204 with no redirect.
// Unauthenticated requests are redirected (302) to the login path, requests
// failing a role or permission requirement to the unauthorized path.
// On success the identity is stored in the context (see GetIdentity).
func Protected(view iam.SessionView, opts ...Option) gin.HandlerFunc {
	cfg := &config{
		dest:          guard.DefaultDestinations(),
		excludedPaths: make(map[string]bool),
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		d := guard.Decide(view, cfg.reqs)
		c.Set(KeyDecision, d)

		switch d {
		case guard.Pending:
			c.AbortWithStatus(http.StatusNoContent)
			return
		case guard.RedirectLogin, guard.RedirectUnauthorized:
			path, _ := cfg.dest.Path(d)
			c.Redirect(http.StatusFound, path)
			c.Abort()
			return
		}

		if src, ok := view.(identitySource); ok {
			if id := src.Identity(); id != nil {
				c.Set(KeyIdentity, id)
				c.Set(KeyUserID, id.ID)
				c.Set(KeyEmail, id.Email)
				c.Set(KeyRoles, id.Roles)
				c.Request = c.Request.WithContext(iam.WithIdentity(c.Request.Context(), id))
			}
		}

		c.Next()
	}
}

// RequireRoles is Protected with only a role requirement.
func RequireRoles(view iam.SessionView, roles ...string) gin.HandlerFunc {
	return Protected(view, WithRoles(roles...))
}

// RequirePermissions is Protected with only a permission requirement.
func RequirePermissions(view iam.SessionView, permissions ...string) gin.HandlerFunc {
	return Protected(view, WithPermissions(permissions...))
}

// Session returns Gin middleware that stores view in the request context so
// handlers and templates can reach it via iam.SessionFromContext.
func Session(view iam.SessionView) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(iam.WithSession(c.Request.Context(), view))
		c.Next()
	}
}

// --- Context helpers ---

// GetIdentity returns the identity stored by Protected.
func GetIdentity(c *gin.Context) *iam.Identity {
	v, _ := c.Get(KeyIdentity)
	id, _ := v.(*iam.Identity)
	return id
}

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

// GetRoles returns the user's roles from the Gin context.
func GetRoles(c *gin.Context) []string {
	return c.GetStringSlice(KeyRoles)
}

// GetEmail returns the user's email from the Gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(KeyEmail)
}

// GetDecision returns the guard decision taken for the request.
func GetDecision(c *gin.Context) guard.Decision {
	v, _ := c.Get(KeyDecision)
	d, _ := v.(guard.Decision)
	return d
}
