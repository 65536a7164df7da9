// Package audit provides structured audit logging for session operations.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Actions emitted by the session manager.
const (
	ActionLogin         = "login"
	ActionVerifyMfa     = "verify_mfa"
	ActionRegister      = "register"
	ActionLogout        = "logout"
	ActionUpdateProfile = "update_profile"
)

// Results attached to events.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultMfaRequired = "mfa_required"
)

// Event represents a session audit event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Action    string    `json:"action"` // login, logout, register, etc.
	Result    string    `json:"result"` // success, failure, mfa_required
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithStdoutHandler adds a handler that writes JSON events to stdout.
func WithStdoutHandler() Option {
	return WithWriterHandler(os.Stdout)
}

// WithWriterHandler adds a handler that writes one JSON event per line to w.
func WithWriterHandler(w io.Writer) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "%s\n", data)
		})
	}
}

// WithSlogHandler adds a handler that writes events through logger.
// Failures are logged at warn level.
func WithSlogHandler(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			level := slog.LevelInfo
			if e.Result == ResultFailure {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("action", e.Action),
				slog.String("result", e.Result),
				slog.Time("timestamp", e.Timestamp),
			}
			if e.UserID != "" {
				attrs = append(attrs, slog.String("user_id", e.UserID))
			}
			if e.Email != "" {
				attrs = append(attrs, slog.String("email", e.Email))
			}
			if e.Details != "" {
				attrs = append(attrs, slog.String("details", e.Details))
			}
			if e.Error != "" {
				attrs = append(attrs, slog.String("error", e.Error))
			}
			logger.LogAttrs(context.Background(), level, "iam audit", attrs...)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New starts an audit logger that delivers events to its handlers on a
// background goroutine. A non-positive bufferSize selects 1000.
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	l := &Logger{
		queue: make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}

	l.wg.Add(1)
	go l.process()
	return l
}

// AddHandler adds a handler to receive audit events.
// It must be called before the first Log.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. A nil Logger drops the event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.queue <- event:
	case <-l.done:
	}
}

func (l *Logger) emit(event Event) {
	for _, h := range l.handlers {
		h(event)
	}
}

func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case e := <-l.queue:
			l.emit(e)
		case <-l.done:
			l.drain()
			return
		}
	}
}

// drain delivers whatever is still queued after Close.
func (l *Logger) drain() {
	for {
		select {
		case e := <-l.queue:
			l.emit(e)
		default:
			return
		}
	}
}

// Close flushes pending events and stops the logger. It is safe to call
// more than once.
func (l *Logger) Close() error {
	l.once.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}
