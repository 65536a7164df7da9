package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chimerakang/iam-session-go/forms"
)

var mfaCmd = &cobra.Command{
	Use:   "mfa",
	Short: "Manage multi-factor authentication",
}

var (
	mfaCode   string
	mfaSecret string
)

var mfaSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Start MFA enrolment",
	Long: `Starts MFA enrolment and prints the secret and otpauth URI for the
authenticator app. Finish with "iamctl mfa confirm --secret ... --code ...".`,
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		s, err := a.forms.StartMfaSetup(ctx)
		if err != nil {
			return err
		}
		pterm.DefaultSection.Println("MFA Setup")
		pterm.Info.Printf("Secret: %s\n", s.Secret)
		pterm.Info.Printf("URI:    %s\n", s.QRCode)
		return nil
	}),
}

var mfaConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm MFA enrolment and print the backup codes",
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		secret, err := value(mfaSecret, "Secret", false)
		if err != nil {
			return err
		}
		code, err := value(mfaCode, "Code", false)
		if err != nil {
			return err
		}
		codes, err := a.forms.ConfirmMfaSetup(ctx, secret, forms.CodeForm{Code: code})
		if err != nil {
			return err
		}
		pterm.Success.Println("MFA enabled")
		pterm.Warning.Println("Store these backup codes safely, each works once:")
		for _, c := range codes {
			pterm.Println("  " + c)
		}
		return nil
	}),
}

var mfaVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Complete a login that is waiting for an MFA code",
	RunE: run(func(ctx context.Context, a *app) error {
		code, err := value(mfaCode, "Code", false)
		if err != nil {
			return err
		}
		if _, err := a.forms.VerifyMfa(ctx, forms.CodeForm{Code: code}); err != nil {
			return err
		}
		pterm.Success.Printf("Logged in as %s\n", a.manager.Identity().Email)
		return nil
	}),
}

var mfaDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn MFA off",
	RunE: run(func(ctx context.Context, a *app) error {
		if err := requireLogin(a); err != nil {
			return err
		}
		code, err := value(mfaCode, "Code", false)
		if err != nil {
			return err
		}
		msg, err := a.forms.DisableMfa(ctx, forms.CodeForm{Code: code})
		if err != nil {
			return err
		}
		pterm.Success.Println(msg)
		return nil
	}),
}

func init() {
	mfaConfirmCmd.Flags().StringVar(&mfaSecret, "secret", "", "Secret printed by mfa setup")
	for _, c := range []*cobra.Command{mfaConfirmCmd, mfaVerifyCmd, mfaDisableCmd} {
		c.Flags().StringVar(&mfaCode, "code", "", "Six-digit code from the authenticator app")
	}
	mfaCmd.AddCommand(mfaSetupCmd, mfaConfirmCmd, mfaVerifyCmd, mfaDisableCmd)
}
