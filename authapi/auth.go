// Package authapi binds the authentication server endpoints to typed calls.
//
// Each method is exactly one apiclient request; its failure mode is the
// apiclient failure mode, with no retry or reinterpretation.
package authapi

import (
	"context"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/apiclient"
)

// Endpoint paths, relative to the API base URL.
const (
	PathMe                   = "/auth/me"
	PathLogin                = "/auth/login"
	PathRegister             = "/auth/register"
	PathLogout               = "/auth/logout"
	PathProfile              = "/auth/profile"
	PathRequestPasswordReset = "/auth/request-password-reset"
	PathResetPassword        = "/auth/reset-password"
	PathChangePassword       = "/auth/change-password"
	PathVerifyMfa            = "/auth/verify-mfa"
	PathMfaSetup             = "/auth/mfa-setup"
	PathVerifyMfaSetup       = "/auth/verify-mfa-setup"
	PathDisableMfa           = "/auth/disable-mfa"
	PathVerifyEmail          = "/auth/verify-email"
	PathResendVerification   = "/auth/resend-verification"
)

// Service implements iam.AuthAPI over an apiclient.Client.
type Service struct {
	client *apiclient.Client
}

// compile-time check
var _ iam.AuthAPI = (*Service)(nil)

// New creates a binding that sends requests through client.
func New(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// Client returns the underlying API client.
func (s *Service) Client() *apiclient.Client { return s.client }

// CurrentUser returns the identity bound to the current session.
func (s *Service) CurrentUser(ctx context.Context) apiclient.Result[iam.Identity] {
	return apiclient.Get[iam.Identity](ctx, s.client, PathMe)
}

// Login starts a session with email and password.
func (s *Service) Login(ctx context.Context, payload iam.LoginPayload) apiclient.Result[iam.LoginResponse] {
	return apiclient.Post[iam.LoginResponse](ctx, s.client, PathLogin, payload)
}

// Register creates an account. The server requires email verification before login.
func (s *Service) Register(ctx context.Context, payload iam.RegisterPayload) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathRegister, payload)
}

// Logout ends the current session.
func (s *Service) Logout(ctx context.Context) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathLogout, struct{}{})
}

// GetProfile returns the full profile of the current user.
func (s *Service) GetProfile(ctx context.Context) apiclient.Result[iam.Identity] {
	return apiclient.Get[iam.Identity](ctx, s.client, PathProfile)
}

// UpdateProfile changes the mutable profile fields and returns the new identity.
func (s *Service) UpdateProfile(ctx context.Context, payload iam.UpdateProfilePayload) apiclient.Result[iam.Identity] {
	return apiclient.Put[iam.Identity](ctx, s.client, PathProfile, payload)
}

// RequestPasswordReset asks the server to email a reset link.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathRequestPasswordReset, map[string]string{
		"email": email,
	})
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathResetPassword, map[string]string{
		"token":    token,
		"password": password,
	})
}

// ChangePassword replaces the password of the authenticated user.
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathChangePassword, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
}

// VerifyMfa completes a login that required a second factor.
func (s *Service) VerifyMfa(ctx context.Context, payload iam.MfaVerifyPayload) apiclient.Result[iam.LoginResponse] {
	return apiclient.Post[iam.LoginResponse](ctx, s.client, PathVerifyMfa, payload)
}

// GetMfaSetup starts MFA enrolment and returns the QR code and secret.
func (s *Service) GetMfaSetup(ctx context.Context) apiclient.Result[iam.MfaSetup] {
	return apiclient.Get[iam.MfaSetup](ctx, s.client, PathMfaSetup)
}

// VerifyMfaSetup confirms enrolment and returns one-time backup codes.
func (s *Service) VerifyMfaSetup(ctx context.Context, code, secret string) apiclient.Result[iam.BackupCodes] {
	return apiclient.Post[iam.BackupCodes](ctx, s.client, PathVerifyMfaSetup, map[string]string{
		"code":   code,
		"secret": secret,
	})
}

// DisableMfa turns MFA off for the current user.
func (s *Service) DisableMfa(ctx context.Context, code string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathDisableMfa, map[string]string{
		"code": code,
	})
}

// VerifyEmail confirms an email address with the token from the verification mail.
func (s *Service) VerifyEmail(ctx context.Context, token string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathVerifyEmail, map[string]string{
		"token": token,
	})
}

// ResendVerification asks the server to send a new verification mail.
func (s *Service) ResendVerification(ctx context.Context, email string) apiclient.Result[iam.MessageResponse] {
	return apiclient.Post[iam.MessageResponse](ctx, s.client, PathResendVerification, map[string]string{
		"email": email,
	})
}
