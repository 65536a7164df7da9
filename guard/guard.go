// Package guard decides whether a protected resource may be shown for the
// current session, and reacts to session changes by navigating away from
// resources that are no longer allowed.
package guard

import (
	"log/slog"
	"sync"

	iam "github.com/chimerakang/iam-session-go"
)

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	// Pending means a session call is outstanding. Nothing is rendered and
	// no navigation happens.
	Pending Decision = iota
	Allow
	RedirectLogin
	RedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "pending"
	}
}

// IsRedirect reports whether d sends the caller elsewhere.
func (d Decision) IsRedirect() bool {
	return d == RedirectLogin || d == RedirectUnauthorized
}

// Decide evaluates reqs against the session. Loading is checked first, then
// authentication, then roles, then permissions. A view that implements
// iam.Snapshotter is frozen first so the checks cannot straddle a change.
func Decide(v iam.SessionView, reqs iam.Requirements) Decision {
	if s, ok := v.(iam.Snapshotter); ok {
		v = s.Snapshot()
	}
	switch {
	case v.IsLoading():
		return Pending
	case !v.IsAuthenticated():
		return RedirectLogin
	case !reqs.MatchedBy(v):
		return RedirectUnauthorized
	default:
		return Allow
	}
}

// Render returns content only when the decision is Allow, and the zero value
// otherwise.
func Render[T any](v iam.SessionView, reqs iam.Requirements, content T) (T, Decision) {
	d := Decide(v, reqs)
	if d != Allow {
		var zero T
		return zero, d
	}
	return content, d
}

// Default destinations.
const (
	DefaultLoginPath        = iam.DefaultLoginPath
	DefaultUnauthorizedPath = iam.DefaultUnauthorizedPath
)

// Destinations maps redirect decisions to paths.
type Destinations struct {
	Login        string
	Unauthorized string
}

// DefaultDestinations returns the built-in login and unauthorized paths.
func DefaultDestinations() Destinations {
	return Destinations{Login: DefaultLoginPath, Unauthorized: DefaultUnauthorizedPath}
}

// Path returns the destination for d, or false when d is not a redirect.
// Empty fields fall back to the defaults.
func (ds Destinations) Path(d Decision) (string, bool) {
	switch d {
	case RedirectLogin:
		if ds.Login == "" {
			return DefaultLoginPath, true
		}
		return ds.Login, true
	case RedirectUnauthorized:
		if ds.Unauthorized == "" {
			return DefaultUnauthorizedPath, true
		}
		return ds.Unauthorized, true
	default:
		return "", false
	}
}

// Navigator moves the consumer to another location.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Observable is a session view that publishes state changes.
type Observable interface {
	iam.SessionView
	Subscribe(fn func(iam.State)) (cancel func())
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDestinations overrides the redirect paths.
func WithDestinations(d Destinations) Option {
	return func(w *Watcher) { w.dest = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher re-evaluates a guard on every session change and navigates when
// the decision becomes a redirect. It never navigates while loading and does
// not repeat a redirect it already issued until access is allowed again.
type Watcher struct {
	src    Observable
	reqs   iam.Requirements
	nav    Navigator
	dest   Destinations
	logger *slog.Logger

	mu        sync.Mutex
	decision  Decision
	navigated Decision
	stopped   bool
	cancel    func()
}

// Watch subscribes to src, evaluates once immediately and then after each
// state change. Call Stop to unsubscribe.
func Watch(src Observable, reqs iam.Requirements, nav Navigator, opts ...Option) *Watcher {
	w := &Watcher{
		src:       src,
		reqs:      reqs,
		nav:       nav,
		dest:      DefaultDestinations(),
		navigated: Pending,
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}

	cancel := src.Subscribe(func(iam.State) { w.evaluate() })
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.evaluate()
	return w
}

// Decision returns the most recent decision.
func (w *Watcher) Decision() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decision
}

// Stop unsubscribes. No navigation happens after Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.stopped = true
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Watcher) evaluate() {
	d := Decide(w.src, w.reqs)

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.decision = d
	switch {
	case d == Allow:
		w.navigated = Pending
	case d.IsRedirect() && d != w.navigated:
		w.navigated = d
	default:
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if d == Allow {
		return
	}
	path, _ := w.dest.Path(d)
	w.logger.Debug("guard redirect", "decision", d.String(), "path", path)
	w.nav.Navigate(path)
}
