// Package session implements iam.SessionService: the single owner of the
// client-side authentication state.
//
// Every state-changing call takes a sequence number when it starts. Its
// error and loading effects are applied only if no newer call has been issued
// in the meantime. Calls that can replace the identity (checks, logout,
// profile updates) additionally take a write number when their request is
// sent; an identity result is discarded once a later-sent write has been
// applied. Loading becomes false when the most recently issued call resolves
// and no check is outstanding for a session that was never resolved.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/apiclient"
	"github.com/chimerakang/iam-session-go/audit"
	"github.com/chimerakang/iam-session-go/authz"
	"github.com/chimerakang/iam-session-go/metrics"
)

// ErrSessionNotEstablished is returned by Login and VerifyMfa when the server
// accepted the credentials but the follow-up check yielded no identity.
var ErrSessionNotEstablished = errors.New("Login succeeded but no session was established")

// ErrCheckFailed is recorded when a session check succeeds without returning
// a decodable identity.
var ErrCheckFailed = errors.New("Authentication check failed")

// Backend is the subset of the auth API the session manager drives.
// *authapi.Service satisfies it.
type Backend interface {
	CurrentUser(ctx context.Context) apiclient.Result[iam.Identity]
	Login(ctx context.Context, payload iam.LoginPayload) apiclient.Result[iam.LoginResponse]
	VerifyMfa(ctx context.Context, payload iam.MfaVerifyPayload) apiclient.Result[iam.LoginResponse]
	Register(ctx context.Context, payload iam.RegisterPayload) apiclient.Result[iam.MessageResponse]
	Logout(ctx context.Context) apiclient.Result[iam.MessageResponse]
	UpdateProfile(ctx context.Context, payload iam.UpdateProfilePayload) apiclient.Result[iam.Identity]
}

// Operation names used in logs and metrics.
const (
	opCheckAuth     = "check_auth"
	opLogin         = "login"
	opVerifyMfa     = "verify_mfa"
	opRegister      = "register"
	opLogout        = "logout"
	opUpdateProfile = "update_profile"
)

// call identifies one state-changing call. write is zero until the call
// sends a request that may replace the identity.
type call struct {
	seq   uint64
	write uint64
}

type listener struct {
	id int
	fn func(iam.State)
}

// Manager implements iam.SessionService.
type Manager struct {
	backend Backend
	authz   *authz.Authorizer
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger

	mu        sync.RWMutex
	state     iam.State
	issued    uint64
	pending   bool // the latest issued call is outstanding
	writes    uint64
	lastWrite uint64
	writing   int
	listeners []listener
	nextID    int

	ready chan struct{}
}

// compile-time checks
var (
	_ iam.SessionService = (*Manager)(nil)
	_ iam.Snapshotter    = (*Manager)(nil)
)

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithAuthorizer replaces the default role→permission table.
func WithAuthorizer(a *authz.Authorizer) Option {
	return func(m *Manager) { m.authz = a }
}

// WithMetrics records transitions, stale results and permission checks.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAudit emits an audit event for every login, logout, registration and
// profile update.
func WithAudit(a *audit.Logger) Option {
	return func(m *Manager) { m.audit = a }
}

// New creates a Manager in the Unknown state and issues the initial session
// check in the background using ctx. Ready is closed once it resolves.
func New(ctx context.Context, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.authz == nil {
		m.authz = authz.New()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	c := m.begin()
	go func() {
		defer close(m.ready)
		_, _ = m.check(ctx, c, opCheckAuth)
	}()
	return m
}

// Ready returns a channel that is closed when the initial check resolves.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// State returns a snapshot of the current session.
func (m *Manager) State() iam.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.state)
}

// Identity returns a copy of the current identity, or nil.
func (m *Manager) Identity() *iam.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Identity.Clone()
}

// IsAuthenticated reports whether an identity is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Identity != nil
}

// IsLoading reports whether the latest issued call is still outstanding.
func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Loading
}

// HasRole reports whether the current identity carries role.
func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authz.HasRole(m.state.Identity, role)
}

// HasPermission reports whether any role of the current identity grants
// permission.
func (m *Manager) HasPermission(permission string) bool {
	m.mu.RLock()
	ok := m.authz.HasPermission(m.state.Identity, permission)
	m.mu.RUnlock()
	m.metrics.RecordPermissionCheck(ok)
	return ok
}

// Permissions returns the permissions granted to the current identity.
func (m *Manager) Permissions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authz.Permissions(m.state.Identity)
}

// Snapshot returns a view of the current session that no later change
// affects.
func (m *Manager) Snapshot() iam.SessionView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return frozen{state: snapshot(m.state), authz: m.authz, metrics: m.metrics}
}

type frozen struct {
	state   iam.State
	authz   *authz.Authorizer
	metrics *metrics.Metrics
}

func (f frozen) IsAuthenticated() bool    { return f.state.Identity != nil }
func (f frozen) IsLoading() bool          { return f.state.Loading }
func (f frozen) HasRole(role string) bool { return f.authz.HasRole(f.state.Identity, role) }

func (f frozen) HasPermission(permission string) bool {
	ok := f.authz.HasPermission(f.state.Identity, permission)
	f.metrics.RecordPermissionCheck(ok)
	return ok
}

// Subscribe registers fn to receive a snapshot after every state change.
// Listeners run on the goroutine that committed the change, outside the
// state lock, in subscription order. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(iam.State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// CheckAuth asks the server for the identity bound to the current session.
// A 401 is not an error: the session simply becomes unauthenticated.
func (m *Manager) CheckAuth(ctx context.Context) error {
	_, err := m.check(ctx, m.begin(), opCheckAuth)
	return err
}

// Login authenticates with email and password. When the server requires a
// second factor it returns LoginMfaRequired and the session stays
// unauthenticated until VerifyMfa succeeds.
func (m *Manager) Login(ctx context.Context, email, password string) (iam.LoginOutcome, error) {
	c := m.begin()
	res := m.backend.Login(ctx, iam.LoginPayload{Email: email, Password: password})
	return m.completeLogin(ctx, c, opLogin, email, res)
}

// VerifyMfa completes a login that returned LoginMfaRequired.
func (m *Manager) VerifyMfa(ctx context.Context, code string) (iam.LoginOutcome, error) {
	c := m.begin()
	res := m.backend.VerifyMfa(ctx, iam.MfaVerifyPayload{Code: code})
	return m.completeLogin(ctx, c, opVerifyMfa, "", res)
}

func (m *Manager) completeLogin(ctx context.Context, c call, op, email string, res apiclient.Result[iam.LoginResponse]) (iam.LoginOutcome, error) {
	if !res.OK() {
		err := res.Err()
		m.finish(c, op, func(s *iam.State) { s.Error = err.Error() })
		m.metrics.RecordAuthFailure(op, "rejected")
		m.audit.Log(audit.Event{Action: op, Result: audit.ResultFailure, Email: email, Error: err.Error()})
		return iam.LoginFailed, err
	}

	if res.Data != nil && res.Data.RequiresMfa {
		m.finish(c, op, nil)
		m.audit.Log(audit.Event{Action: op, Result: audit.ResultMfaRequired, Email: email})
		return iam.LoginMfaRequired, nil
	}

	// The login response is not trusted as the identity; the check is.
	id, _ := m.check(ctx, c, op)
	if id == nil {
		m.metrics.RecordAuthFailure(op, "no_session")
		m.audit.Log(audit.Event{Action: op, Result: audit.ResultFailure, Email: email, Error: ErrSessionNotEstablished.Error()})
		return iam.LoginFailed, ErrSessionNotEstablished
	}

	m.metrics.RecordAuthSuccess(op)
	m.audit.Log(audit.Event{Action: op, Result: audit.ResultSuccess, UserID: id.ID, Email: id.Email})
	return iam.LoginAuthenticated, nil
}

// Register creates an account and returns the server message. It never
// authenticates the session: the server requires email verification first.
func (m *Manager) Register(ctx context.Context, payload iam.RegisterPayload) (string, error) {
	c := m.begin()
	res := m.backend.Register(ctx, payload)
	if !res.OK() {
		err := res.Err()
		m.finish(c, opRegister, func(s *iam.State) { s.Error = err.Error() })
		m.audit.Log(audit.Event{Action: audit.ActionRegister, Result: audit.ResultFailure, Email: payload.Email, Error: err.Error()})
		return "", err
	}

	m.finish(c, opRegister, nil)
	m.audit.Log(audit.Event{Action: audit.ActionRegister, Result: audit.ResultSuccess, Email: payload.Email})
	if res.Data == nil {
		return "", nil
	}
	return res.Data.Message, nil
}

// Logout ends the session. On failure the error is recorded and returned,
// and the identity is left as it was.
func (m *Manager) Logout(ctx context.Context) error {
	userID := ""
	if id := m.Identity(); id != nil {
		userID = id.ID
	}

	c := m.reserve(m.begin())
	res := m.backend.Logout(ctx)
	if !res.OK() {
		err := res.Err()
		m.finish(c, opLogout, func(s *iam.State) { s.Error = err.Error() })
		m.audit.Log(audit.Event{Action: audit.ActionLogout, Result: audit.ResultFailure, UserID: userID, Error: err.Error()})
		return err
	}

	m.commit(c, opLogout, func(s *iam.State) {
		s.Identity = nil
		s.Checked = true
	})
	m.audit.Log(audit.Event{Action: audit.ActionLogout, Result: audit.ResultSuccess, UserID: userID})
	return nil
}

// UpdateProfile changes the mutable profile fields. On success the identity
// is replaced wholesale by the server response.
func (m *Manager) UpdateProfile(ctx context.Context, payload iam.UpdateProfilePayload) (*iam.Identity, error) {
	c := m.reserve(m.begin())
	res := m.backend.UpdateProfile(ctx, payload)
	if !res.OK() {
		err := res.Err()
		m.finish(c, opUpdateProfile, func(s *iam.State) { s.Error = err.Error() })
		m.audit.Log(audit.Event{Action: audit.ActionUpdateProfile, Result: audit.ResultFailure, Error: err.Error()})
		return nil, err
	}

	var id *iam.Identity
	if res.Data != nil {
		id = res.Data.Clone()
		m.commit(c, opUpdateProfile, func(s *iam.State) { s.Identity = id.Clone() })
	} else {
		m.finish(c, opUpdateProfile, nil)
	}
	m.audit.Log(audit.Event{Action: audit.ActionUpdateProfile, Result: audit.ResultSuccess, UserID: id.GetID()})
	return id, nil
}

// check resolves the current identity as part of the already issued call c.
// It returns the identity the server reported, whether or not the result
// was applied.
func (m *Manager) check(ctx context.Context, c call, op string) (*iam.Identity, error) {
	c = m.reserve(c)
	res := m.backend.CurrentUser(ctx)

	var (
		id  *iam.Identity
		err error
	)
	switch {
	case res.OK() && res.Data != nil:
		id = res.Data.Clone()
	case res.IsUnauthorized():
	case res.OK():
		err = ErrCheckFailed
	default:
		err = res.Err()
	}

	m.commit(c, op, func(s *iam.State) {
		s.Identity = id.Clone()
		s.Checked = true
		if err != nil {
			s.Error = err.Error()
		}
	})
	return id, err
}

// begin issues a new sequence number and marks the session loading.
func (m *Manager) begin() call {
	m.mu.Lock()
	m.issued++
	c := call{seq: m.issued}
	m.pending = true
	m.state.Loading = true
	m.state.Error = ""
	snap, ls := snapshot(m.state), m.listenerFuncs()
	m.mu.Unlock()

	m.notify(snap, ls)
	return c
}

// reserve assigns c a write number. It must be called right before the
// request whose response may replace the identity is sent.
func (m *Manager) reserve(c call) call {
	m.mu.Lock()
	m.writes++
	c.write = m.writes
	m.writing++
	changed := m.updateLoading()
	snap, ls := snapshot(m.state), m.listenerFuncs()
	m.mu.Unlock()

	if changed {
		m.notify(snap, ls)
	}
	return c
}

// finish settles a result that leaves the identity alone. fn is applied only
// if c is still the latest issued call.
func (m *Manager) finish(c call, op string, fn func(*iam.State)) bool {
	return m.settle(c, op, fn, false)
}

// commit settles a result that replaces the identity. fn is applied unless a
// write sent after c has already been applied.
func (m *Manager) commit(c call, op string, fn func(*iam.State)) bool {
	return m.settle(c, op, fn, true)
}

func (m *Manager) settle(c call, op string, fn func(*iam.State), identity bool) bool {
	m.mu.Lock()
	if c.write != 0 {
		m.writing--
	}
	latest := c.seq == m.issued
	if latest {
		m.pending = false
	}

	apply := latest
	if identity {
		apply = c.write > m.lastWrite
	}
	if apply {
		if identity {
			m.lastWrite = c.write
		}
		if fn != nil {
			fn(&m.state)
		}
	}
	changed := m.updateLoading()
	issued, lastWrite := m.issued, m.lastWrite
	var (
		snap iam.State
		ls   []func(iam.State)
	)
	if apply || changed {
		snap, ls = snapshot(m.state), m.listenerFuncs()
	}
	m.mu.Unlock()

	if !apply {
		m.metrics.RecordStaleResult(op)
		m.logger.Debug("discarding stale session result", "action", op, "seq", c.seq, "latest", issued, "write", c.write, "last_write", lastWrite)
		if changed {
			m.notify(snap, ls)
		}
		return false
	}

	m.metrics.RecordTransition(string(snap.Status()))
	m.logger.Debug("session state changed", "action", op, "seq", c.seq, "status", snap.Status(), "user_id", snap.Identity.GetID())
	m.notify(snap, ls)
	return true
}

// updateLoading recomputes the loading flag and reports whether it changed.
// A session that was never resolved keeps loading while any check is
// outstanding. It must be called with mu held.
func (m *Manager) updateLoading() bool {
	loading := m.pending || (!m.state.Checked && m.writing > 0)
	changed := loading != m.state.Loading
	m.state.Loading = loading
	return changed
}

// listenerFuncs must be called with mu held.
func (m *Manager) listenerFuncs() []func(iam.State) {
	if len(m.listeners) == 0 {
		return nil
	}
	fns := make([]func(iam.State), len(m.listeners))
	for i, l := range m.listeners {
		fns[i] = l.fn
	}
	return fns
}

func (m *Manager) notify(s iam.State, fns []func(iam.State)) {
	for _, fn := range fns {
		fn(snapshot(s))
	}
}

func snapshot(s iam.State) iam.State {
	s.Identity = s.Identity.Clone()
	return s
}
