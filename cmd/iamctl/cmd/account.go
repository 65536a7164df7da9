package cmd

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chimerakang/iam-session-go/forms"
)

var errNotLoggedIn = errors.New("not logged in (run iamctl login)")

func requireLogin(a *app) error {
	if !a.manager.IsAuthenticated() {
		return errNotLoggedIn
	}
	return nil
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update the profile",
}

var profileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the full profile",
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		p, err := a.forms.LoadProfile(ctx)
		if err != nil {
			return err
		}
		printIdentity(p, a.manager.Permissions())
		return nil
	}),
}

var (
	profileFirstName string
	profileLastName  string
	profilePicture   string
)

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update name and profile picture",
	Long:  `Updates the profile. Flags left empty keep their current value.`,
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		cur := a.manager.Identity()
		f := forms.ProfileForm{FirstName: cur.FirstName, LastName: cur.LastName, ProfilePicture: profilePicture}
		if profileFirstName != "" {
			f.FirstName = profileFirstName
		}
		if profileLastName != "" {
			f.LastName = profileLastName
		}

		id, err := a.forms.UpdateProfile(ctx, f)
		if err != nil {
			return err
		}
		pterm.Success.Println("Profile updated")
		printIdentity(id, a.manager.Permissions())
		return nil
	}),
}

// --- password ---

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Reset or change the password",
}

var forgotEmail string

var passwordForgotCmd = &cobra.Command{
	Use:   "forgot",
	Short: "Request a password reset mail",
	RunE: run(func(ctx context.Context, a *app) error {
		email, err := value(forgotEmail, "Email", false)
		if err != nil {
			return err
		}
		msg, err := a.forms.ForgotPassword(ctx, forms.EmailForm{Email: email})
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

var (
	resetToken    string
	resetPassword string
)

var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new password with the token from the reset mail",
	RunE: run(func(ctx context.Context, a *app) error {
		pw, err := value(resetPassword, "New password", true)
		if err != nil {
			return err
		}
		confirm := pw
		if resetPassword == "" {
			if confirm, err = value("", "Confirm password", true); err != nil {
				return err
			}
		}
		msg, err := a.forms.ResetPassword(ctx, forms.ResetPasswordForm{Token: resetToken, Password: pw, ConfirmPassword: confirm})
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

var (
	changeCurrent string
	changeNew     string
)

var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the password of the logged-in user",
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		cur, err := value(changeCurrent, "Current password", true)
		if err != nil {
			return err
		}
		pw, err := value(changeNew, "New password", true)
		if err != nil {
			return err
		}
		confirm := pw
		if changeNew == "" {
			if confirm, err = value("", "Confirm password", true); err != nil {
				return err
			}
		}
		msg, err := a.forms.ChangePassword(ctx, forms.ChangePasswordForm{CurrentPassword: cur, NewPassword: pw, ConfirmPassword: confirm})
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

// --- email ---

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Verify the account email address",
}

var verifyToken string

var emailVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Confirm the email address with the token from the verification mail",
	RunE: run(func(ctx context.Context, a *app) error {
		msg, err := a.forms.VerifyEmail(ctx, verifyToken)
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

var resendEmail string

var emailResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Request a new verification mail",
	RunE: run(func(ctx context.Context, a *app) error {
		email, err := value(resendEmail, "Email", false)
		if err != nil {
			return err
		}
		msg, err := a.forms.ResendVerification(ctx, forms.EmailForm{Email: email})
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

func init() {
	profileUpdateCmd.Flags().StringVar(&profileFirstName, "first-name", "", "New first name")
	profileUpdateCmd.Flags().StringVar(&profileLastName, "last-name", "", "New last name")
	profileUpdateCmd.Flags().StringVar(&profilePicture, "picture", "", "Profile picture URL")
	profileCmd.AddCommand(profileGetCmd, profileUpdateCmd)

	passwordForgotCmd.Flags().StringVar(&forgotEmail, "email", "", "Account email")
	passwordResetCmd.Flags().StringVar(&resetToken, "token", "", "Token from the reset mail")
	passwordResetCmd.Flags().StringVar(&resetPassword, "password", "", "New password (prompted twice when empty)")
	passwordChangeCmd.Flags().StringVar(&changeCurrent, "current", "", "Current password")
	passwordChangeCmd.Flags().StringVar(&changeNew, "new", "", "New password (prompted twice when empty)")
	passwordCmd.AddCommand(passwordForgotCmd, passwordResetCmd, passwordChangeCmd)

	emailVerifyCmd.Flags().StringVar(&verifyToken, "token", "", "Token from the verification mail")
	emailResendCmd.Flags().StringVar(&resendEmail, "email", "", "Account email")
	emailCmd.AddCommand(emailVerifyCmd, emailResendCmd)
}
