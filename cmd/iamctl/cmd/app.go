package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/cmd/iamctl/internal/cookiestore"
	"github.com/chimerakang/iam-session-go/forms"
	"github.com/chimerakang/iam-session-go/remote"
	"github.com/chimerakang/iam-session-go/session"
)

// app is a connected session for the duration of one command.
type app struct {
	client  *iam.Client
	manager *session.Manager
	forms   *forms.Controller
	store   *cookiestore.FileStore
}

func connect(cmd *cobra.Command) (*app, error) {
	cfg, err := iam.LoadConfig()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.BaseURL = serverURL
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w (set --server or IAM_API_URL)", err)
	}

	level := cfg.SlogLevel()
	if debug {
		level = slog.LevelDebug
	} else if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := cookiestore.NewFileStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie store: %w", err)
	}
	if err := store.Load(cfg.BaseURL); err != nil {
		return nil, err
	}

	client, err := remote.NewClient(cmd.Context(), cfg,
		remote.WithHTTPClient(&http.Client{Jar: store}),
		remote.WithLogger(logger),
		remote.WithRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		return nil, err
	}
	m, _ := remote.Manager(client)

	select {
	case <-m.Ready():
	case <-cmd.Context().Done():
		_ = client.Close()
		return nil, cmd.Context().Err()
	}

	return &app{
		client:  client,
		manager: m,
		forms:   forms.NewController(client.Session(), client.Auth(), forms.WithLogger(logger)),
		store:   store,
	}, nil
}

// close persists the cookies and releases the client.
func (a *app) close() error {
	return errors.Join(a.store.Save(), a.client.Close())
}

// run connects, calls fn and closes, for commands whose RunE is just fn.
func run(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := connect(cmd)
		if err != nil {
			return err
		}
		return errors.Join(fn(cmd.Context(), a), a.close())
	}
}

// value returns flag if set, otherwise prompts for it.
func value(flag, label string, secret bool) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if nonInteractive {
		return "", fmt.Errorf("%s is required in non-interactive mode", label)
	}
	input := pterm.DefaultInteractiveTextInput
	if secret {
		input = *input.WithMask("*")
	}
	return input.Show(label)
}

func printIdentity(id *iam.Identity, perms []string) {
	if id == nil {
		pterm.Warning.Println("Not logged in")
		return
	}
	picture := ""
	if id.ProfilePicture != nil {
		picture = *id.ProfilePicture
	}
	mfa := "disabled"
	if id.MfaEnabled {
		mfa = "enabled"
	}
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"ID", id.ID},
		{"Email", id.Email},
		{"Name", id.FirstName + " " + id.LastName},
		{"Roles", fmt.Sprint(id.Roles)},
		{"Permissions", fmt.Sprint(perms)},
		{"MFA", mfa},
		{"Picture", picture},
	}).Render()
}
