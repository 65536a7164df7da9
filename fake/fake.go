// Package fake provides an in-memory authentication server implementing every
// endpoint the session layer talks to.
//
// Use fake.NewServer() in tests to exercise the real HTTP client, cookie jar
// and session manager without an external dependency:
//
//	srv := fake.NewServer(fake.WithUser("u1", "alice@example.com", "Secret1!", "user"))
//	defer srv.Close()
//	client, _ := remote.NewClient(ctx, iam.Config{BaseURL: srv.URL()})
package fake

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	iam "github.com/chimerakang/iam-session-go"
)

// DefaultMfaCode is the code accepted for every MFA-enabled account unless
// WithMfaCode overrides it.
const DefaultMfaCode = "123456"

// Cookie names set by the server.
const (
	SessionCookie    = "iam_session"
	MfaPendingCookie = "iam_mfa_pending"
)

const backupCodeCount = 8

// Option configures the fake server.
type Option func(*state)

type state struct {
	mu           sync.RWMutex
	accounts     map[string]*account // email → account
	byID         map[string]*account // userID → account
	verifyTokens map[string]string   // token → email
	resetTokens  map[string]string   // token → email
	revoked      map[string]bool     // session token ID → revoked
	failures     map[string]failure  // path → injected failure
	hits         map[string]int      // path → request count
	mfaCode      string
	signingKey   []byte
	sessionTTL   time.Duration
	basePath     string
}

type account struct {
	identity    iam.Identity
	password    string
	verified    bool
	mfaSecret   string
	setupSecret string
	backupCodes []string
}

type failure struct {
	status  int
	message string
}

// WithUser adds a verified account.
func WithUser(id, email, password string, roles ...string) Option {
	return func(s *state) {
		s.addAccount(id, email, password, true, roles)
	}
}

// WithUnverifiedUser adds an account whose email address has not been
// verified yet. Login is refused until it is.
func WithUnverifiedUser(id, email, password string, roles ...string) Option {
	return func(s *state) {
		s.addAccount(id, email, password, false, roles)
		s.verifyTokens[uuid.NewString()] = email
	}
}

// WithName sets the first and last name of an existing account.
func WithName(email, firstName, lastName string) Option {
	return func(s *state) {
		if a, ok := s.accounts[email]; ok {
			a.identity.FirstName = firstName
			a.identity.LastName = lastName
		}
	}
}

// WithMfa enables MFA for an existing account.
func WithMfa(email string) Option {
	return func(s *state) {
		if a, ok := s.accounts[email]; ok {
			a.mfaSecret = newSecret()
			a.identity.MfaEnabled = true
		}
	}
}

// WithMfaCode sets the code accepted for MFA verification.
func WithMfaCode(code string) Option {
	return func(s *state) { s.mfaCode = code }
}

// WithFailure makes every request to path fail with status and message.
// An empty message produces a response without a body.
func WithFailure(path string, status int, message string) Option {
	return func(s *state) { s.failures[path] = failure{status: status, message: message} }
}

// WithSessionTTL sets how long a session cookie stays valid.
func WithSessionTTL(d time.Duration) Option {
	return func(s *state) { s.sessionTTL = d }
}

// WithBasePath mounts every endpoint under prefix (for example "/api").
func WithBasePath(prefix string) Option {
	return func(s *state) { s.basePath = strings.TrimSuffix(prefix, "/") }
}

func (s *state) addAccount(id, email, password string, verified bool, roles []string) {
	if roles == nil {
		roles = []string{}
	}
	a := &account{
		identity: iam.Identity{
			ID:    id,
			Email: email,
			Roles: slices.Clone(roles),
		},
		password: password,
		verified: verified,
	}
	s.accounts[email] = a
	s.byID[id] = a
}

// Server is a running fake authentication server.
type Server struct {
	s      *state
	engine *gin.Engine
	http   *httptest.Server
}

// New builds the server without starting a listener. Use Handler to mount
// it, or NewServer to start one.
func New(opts ...Option) *Server {
	s := &state{
		accounts:     make(map[string]*account),
		byID:         make(map[string]*account),
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
		revoked:      make(map[string]bool),
		failures:     make(map[string]failure),
		hits:         make(map[string]int),
		mfaCode:      DefaultMfaCode,
		signingKey:   []byte(uuid.NewString()),
		sessionTTL:   time.Hour,
	}
	for _, o := range opts {
		o(s)
	}

	srv := &Server{s: s}
	srv.engine = srv.routes()
	return srv
}

// NewServer builds the server and starts it on a local listener.
func NewServer(opts ...Option) *Server {
	srv := New(opts...)
	srv.http = httptest.NewServer(srv.engine)
	return srv
}

// Handler returns the HTTP handler serving every endpoint.
func (srv *Server) Handler() http.Handler { return srv.engine }

// URL returns the base URL of a started server, including the base path.
func (srv *Server) URL() string {
	if srv.http == nil {
		return ""
	}
	return srv.http.URL + srv.s.basePath
}

// Close stops a started server.
func (srv *Server) Close() {
	if srv.http != nil {
		srv.http.Close()
	}
}

// Fail injects a failure for path at runtime. See WithFailure.
func (srv *Server) Fail(path string, status int, message string) {
	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	srv.s.failures[path] = failure{status: status, message: message}
}

// Recover removes an injected failure.
func (srv *Server) Recover(path string) {
	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	delete(srv.s.failures, path)
}

// Hits returns how many requests reached path.
func (srv *Server) Hits(path string) int {
	srv.s.mu.RLock()
	defer srv.s.mu.RUnlock()
	return srv.s.hits[path]
}

// VerificationToken returns the pending email verification token for email,
// as if read from the verification mail.
func (srv *Server) VerificationToken(email string) (string, bool) {
	return srv.tokenFor(srv.s.verifyTokens, email)
}

// ResetToken returns the pending password reset token for email.
func (srv *Server) ResetToken(email string) (string, bool) {
	return srv.tokenFor(srv.s.resetTokens, email)
}

// MfaCode returns the code currently accepted for MFA verification.
func (srv *Server) MfaCode() string {
	srv.s.mu.RLock()
	defer srv.s.mu.RUnlock()
	return srv.s.mfaCode
}

// User returns a copy of the stored identity for email.
func (srv *Server) User(email string) (*iam.Identity, error) {
	srv.s.mu.RLock()
	defer srv.s.mu.RUnlock()
	a, ok := srv.s.accounts[email]
	if !ok {
		return nil, fmt.Errorf("iam/fake: user %q not found", email)
	}
	return a.identity.Clone(), nil
}

func (srv *Server) tokenFor(tokens map[string]string, email string) (string, bool) {
	srv.s.mu.RLock()
	defer srv.s.mu.RUnlock()
	for tok, e := range tokens {
		if e == email {
			return tok, true
		}
	}
	return "", false
}

// newSecret returns a base32-looking MFA secret.
func newSecret() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
}
