package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/forms"
)

var (
	loginEmail    string
	loginPassword string
	loginCode     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Long: `Logs in with email and password. When the account has MFA enabled the
code is read from --code or prompted for.`,
	RunE: run(func(ctx context.Context, a *app) error {
		email, err := value(loginEmail, "Email", false)
		if err != nil {
			return err
		}
		password, err := value(loginPassword, "Password", true)
		if err != nil {
			return err
		}

		outcome, err := a.forms.Login(ctx, forms.LoginForm{Email: email, Password: password})
		if err != nil {
			return err
		}
		if outcome == iam.LoginMfaRequired {
			pterm.Info.Println("Multi-factor authentication required")
			code, err := value(loginCode, "Code", false)
			if err != nil {
				return err
			}
			if _, err := a.forms.VerifyMfa(ctx, forms.CodeForm{Code: code}); err != nil {
				return err
			}
		}

		id := a.manager.Identity()
		pterm.Success.Printf("Logged in as %s (%s)\n", id.Email, id.ID)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: run(func(ctx context.Context, a *app) error {
		if !a.manager.IsAuthenticated() {
			pterm.Info.Println("Not logged in")
			return a.store.Delete()
		}
		if err := a.forms.Logout(ctx); err != nil {
			return err
		}
		pterm.Success.Println("Logged out successfully")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Display the current session",
	RunE: run(func(ctx context.Context, a *app) error {
		st := a.manager.State()
		if st.Error != "" {
			return fmt.Errorf("session check failed: %s", st.Error)
		}
		pterm.DefaultSection.Println("Session")
		pterm.Info.Printf("Status: %s\n", st.Status())
		printIdentity(st.Identity, a.manager.Permissions())
		return nil
	}),
}

var (
	registerFirstName string
	registerLastName  string
	registerEmail     string
	registerPassword  string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Creates an account. The server sends a verification mail; confirm it with
"iamctl email verify --token ..." before logging in.`,
	RunE: run(func(ctx context.Context, a *app) error {
		f := forms.RegisterForm{}
		var err error
		if f.FirstName, err = value(registerFirstName, "First name", false); err != nil {
			return err
		}
		if f.LastName, err = value(registerLastName, "Last name", false); err != nil {
			return err
		}
		if f.Email, err = value(registerEmail, "Email", false); err != nil {
			return err
		}
		if f.Password, err = value(registerPassword, "Password", true); err != nil {
			return err
		}
		f.ConfirmPassword = f.Password
		if registerPassword == "" {
			if f.ConfirmPassword, err = value("", "Confirm password", true); err != nil {
				return err
			}
		}

		msg, err := a.forms.Register(ctx, f)
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when empty)")
	loginCmd.Flags().StringVar(&loginCode, "code", "", "MFA code, when required")

	registerCmd.Flags().StringVar(&registerFirstName, "first-name", "", "First name")
	registerCmd.Flags().StringVar(&registerLastName, "last-name", "", "Last name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Account password (prompted twice when empty)")
}
