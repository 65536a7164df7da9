package iam

import (
	"context"

	"github.com/chimerakang/iam-session-go/apiclient"
)

// SessionView is the read-only surface consumed by route guards, permission
// gates and templates.
type SessionView interface {
	IsAuthenticated() bool
	IsLoading() bool
	HasRole(role string) bool
	HasPermission(permission string) bool
}

// Snapshotter is implemented by views that can freeze their current state.
// The returned view answers every question from the same snapshot.
type Snapshotter interface {
	Snapshot() SessionView
}

// SessionService owns the session state and is the only thing allowed to
// mutate it. Implementations: session/ (HTTP backed), tests via mocks/.
type SessionService interface {
	SessionView

	// State returns a snapshot of the current session.
	State() State

	// Subscribe registers fn to receive a snapshot after every state change.
	Subscribe(fn func(State)) (cancel func())

	CheckAuth(ctx context.Context) error
	Login(ctx context.Context, email, password string) (LoginOutcome, error)
	VerifyMfa(ctx context.Context, code string) (LoginOutcome, error)
	Register(ctx context.Context, payload RegisterPayload) (string, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, payload UpdateProfilePayload) (*Identity, error)
}

// AuthAPI is the typed binding of the authentication server endpoints.
// Every method is a single request; failures are reported in the Result.
type AuthAPI interface {
	CurrentUser(ctx context.Context) apiclient.Result[Identity]
	Login(ctx context.Context, payload LoginPayload) apiclient.Result[LoginResponse]
	Register(ctx context.Context, payload RegisterPayload) apiclient.Result[MessageResponse]
	Logout(ctx context.Context) apiclient.Result[MessageResponse]

	GetProfile(ctx context.Context) apiclient.Result[Identity]
	UpdateProfile(ctx context.Context, payload UpdateProfilePayload) apiclient.Result[Identity]

	RequestPasswordReset(ctx context.Context, email string) apiclient.Result[MessageResponse]
	ResetPassword(ctx context.Context, token, password string) apiclient.Result[MessageResponse]
	ChangePassword(ctx context.Context, currentPassword, newPassword string) apiclient.Result[MessageResponse]

	VerifyMfa(ctx context.Context, payload MfaVerifyPayload) apiclient.Result[LoginResponse]
	GetMfaSetup(ctx context.Context) apiclient.Result[MfaSetup]
	VerifyMfaSetup(ctx context.Context, code, secret string) apiclient.Result[BackupCodes]
	DisableMfa(ctx context.Context, code string) apiclient.Result[MessageResponse]

	VerifyEmail(ctx context.Context, token string) apiclient.Result[MessageResponse]
	ResendVerification(ctx context.Context, email string) apiclient.Result[MessageResponse]
}
