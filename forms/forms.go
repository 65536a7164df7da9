// Package forms implements the headless authentication forms: each flow
// validates its input locally, then calls the session (for flows that change
// who is logged in) or the auth API binding, and returns either the server
// message or a display-ready error.
package forms

import (
	"context"
	"log/slog"
	"strings"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/apiclient"
)

// LoginForm is the email and password login form.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterForm is the account registration form.
type RegisterForm struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

// EmailForm carries a single email address, for the forgot password and
// resend verification flows.
type EmailForm struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordForm sets a new password with the token from a reset mail.
type ResetPasswordForm struct {
	Token           string `json:"token"`
	Password        string `json:"password" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

// ChangePasswordForm replaces the password of the logged-in user.
type ChangePasswordForm struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=NewPassword"`
}

// CodeForm carries a six-digit MFA code.
type CodeForm struct {
	Code string `json:"code" validate:"required,mfacode"`
}

// ProfileForm carries the editable profile fields.
type ProfileForm struct {
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	ProfilePicture string `json:"profilePicture" validate:"omitempty,url"`
}

// Controller runs the form flows against a session and the auth API.
type Controller struct {
	session iam.SessionService
	api     iam.AuthAPI
	logger  *slog.Logger
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller.
func NewController(session iam.SessionService, api iam.AuthAPI, opts ...Option) *Controller {
	c := &Controller{session: session, api: api}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Login validates f and logs in. LoginMfaRequired means the caller should
// continue with VerifyMfa.
func (c *Controller) Login(ctx context.Context, f LoginForm) (iam.LoginOutcome, error) {
	f.Email = strings.TrimSpace(f.Email)
	if err := Validate(f); err != nil {
		return iam.LoginFailed, err
	}
	return c.session.Login(ctx, f.Email, f.Password)
}

// VerifyMfa completes a login that required a second factor.
func (c *Controller) VerifyMfa(ctx context.Context, f CodeForm) (iam.LoginOutcome, error) {
	if err := Validate(f); err != nil {
		return iam.LoginFailed, err
	}
	return c.session.VerifyMfa(ctx, f.Code)
}

// Register validates f and creates the account. The session stays
// unauthenticated until the email address is verified.
func (c *Controller) Register(ctx context.Context, f RegisterForm) (string, error) {
	f.Email = strings.TrimSpace(f.Email)
	if err := Validate(f); err != nil {
		return "", err
	}
	return c.session.Register(ctx, iam.RegisterPayload{
		Email:     f.Email,
		Password:  f.Password,
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
	})
}

// Logout ends the session.
func (c *Controller) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// ForgotPassword asks the server to email a reset link.
func (c *Controller) ForgotPassword(ctx context.Context, f EmailForm) (string, error) {
	f.Email = strings.TrimSpace(f.Email)
	if err := Validate(f); err != nil {
		return "", err
	}
	return serverMessage(c.api.RequestPasswordReset(ctx, f.Email))
}

// ResetPassword sets a new password. Password checks run before the token
// check.
func (c *Controller) ResetPassword(ctx context.Context, f ResetPasswordForm) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}
	if strings.TrimSpace(f.Token) == "" {
		return "", &ValidationError{Field: "token", Message: MsgResetTokenMissing}
	}
	return serverMessage(c.api.ResetPassword(ctx, f.Token, f.Password))
}

// ChangePassword replaces the current user's password.
func (c *Controller) ChangePassword(ctx context.Context, f ChangePasswordForm) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}
	return serverMessage(c.api.ChangePassword(ctx, f.CurrentPassword, f.NewPassword))
}

// StartMfaSetup begins MFA enrolment and returns the QR code and secret to
// show the user.
func (c *Controller) StartMfaSetup(ctx context.Context) (*iam.MfaSetup, error) {
	res := c.api.GetMfaSetup(ctx)
	if !res.OK() {
		return nil, res.Err()
	}
	if res.Data == nil {
		return &iam.MfaSetup{}, nil
	}
	return res.Data, nil
}

// ConfirmMfaSetup confirms enrolment with a code from the authenticator app
// and returns the one-time backup codes. The session is refreshed so the
// identity reflects the enabled factor.
func (c *Controller) ConfirmMfaSetup(ctx context.Context, secret string, f CodeForm) ([]string, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	res := c.api.VerifyMfaSetup(ctx, f.Code, secret)
	if !res.OK() {
		return nil, res.Err()
	}
	c.refresh(ctx, "confirm_mfa_setup")
	if res.Data == nil {
		return nil, nil
	}
	return res.Data.BackupCodes, nil
}

// DisableMfa turns MFA off after confirming a current code.
func (c *Controller) DisableMfa(ctx context.Context, f CodeForm) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}
	msg, err := serverMessage(c.api.DisableMfa(ctx, f.Code))
	if err != nil {
		return "", err
	}
	c.refresh(ctx, "disable_mfa")
	return msg, nil
}

// LoadProfile returns the full profile used to prefill the profile form.
func (c *Controller) LoadProfile(ctx context.Context) (*iam.Identity, error) {
	res := c.api.GetProfile(ctx)
	if !res.OK() {
		return nil, res.Err()
	}
	return res.Data, nil
}

// UpdateProfile validates f and saves it through the session, which replaces
// its identity with the server response.
func (c *Controller) UpdateProfile(ctx context.Context, f ProfileForm) (*iam.Identity, error) {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	if err := Validate(f); err != nil {
		return nil, err
	}
	return c.session.UpdateProfile(ctx, iam.UpdateProfilePayload{
		FirstName:      f.FirstName,
		LastName:       f.LastName,
		ProfilePicture: f.ProfilePicture,
	})
}

// VerifyEmail confirms an email address with the token from the
// verification mail.
func (c *Controller) VerifyEmail(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &ValidationError{Field: "token", Message: MsgVerificationTokenMissing}
	}
	return serverMessage(c.api.VerifyEmail(ctx, token))
}

// ResendVerification asks for a new verification mail.
func (c *Controller) ResendVerification(ctx context.Context, f EmailForm) (string, error) {
	f.Email = strings.TrimSpace(f.Email)
	if err := Validate(f); err != nil {
		return "", err
	}
	return serverMessage(c.api.ResendVerification(ctx, f.Email))
}

// refresh re-reads the identity after a change the session did not make
// itself. A failed refresh is logged, not returned: the change succeeded.
func (c *Controller) refresh(ctx context.Context, action string) {
	if err := c.session.CheckAuth(ctx); err != nil {
		c.logger.Warn("session refresh failed", "action", action, "error", err)
	}
}

func serverMessage(res apiclient.Result[iam.MessageResponse]) (string, error) {
	if !res.OK() {
		return "", res.Err()
	}
	if res.Data == nil {
		return "", nil
	}
	return res.Data.Message, nil
}
