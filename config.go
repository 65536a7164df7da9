package iam

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "IAM_"

// Default navigation destinations used by route guards.
const (
	DefaultLoginPath        = "/auth/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// Config holds connection and behavior configuration.
type Config struct {
	// BaseURL is the address of the authentication API, e.g. "https://app.example.com/api".
	BaseURL string `env:"API_URL"`

	// RequestTimeout bounds each HTTP call. Zero leaves the transport default in place.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"0s"`

	// LoginPath is where guards send unauthenticated users.
	LoginPath string `env:"LOGIN_PATH" envDefault:"/auth/login"`

	// UnauthorizedPath is where guards send users lacking a role or permission.
	UnauthorizedPath string `env:"UNAUTHORIZED_PATH" envDefault:"/unauthorized"`

	// MetricsEnabled registers Prometheus collectors for session operations.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// AuditBufferSize is the queue size of the audit event stream.
	AuditBufferSize int `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads Config from IAM_* environment variables, loading a .env
// file first when one exists.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("iam: load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("iam: parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize fills defaults for values left empty by callers that build Config by hand.
func (c *Config) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.UnauthorizedPath == "" {
		c.UnauthorizedPath = DefaultUnauthorizedPath
	}
	if c.AuditBufferSize <= 0 {
		c.AuditBufferSize = 1000
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
}

// Validate checks that the configuration can reach a server.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("iam: BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("iam: invalid BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("iam: BaseURL must be http or https, got %q", u.Scheme)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
