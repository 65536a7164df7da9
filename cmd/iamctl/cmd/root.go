package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL      string
	nonInteractive bool
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:   "iamctl",
	Short: "IAM CLI - session client for the authentication server",
	Long: `iamctl drives the authentication server from the command line: log in
(with MFA when enabled), register, manage the profile, passwords and MFA.

The session cookie is kept in ~/.iamctl/cookies.json between runs.
Configuration is read from IAM_* environment variables and a .env file;
--server overrides IAM_API_URL.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("IAM_NON_INTERACTIVE") == "1" {
			nonInteractive = true
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Authentication API base URL (overrides IAM_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Disable interactive prompts (also set via IAM_NON_INTERACTIVE=1)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every request to stderr")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd)
	rootCmd.AddCommand(profileCmd, passwordCmd, mfaCmd, emailCmd)
}
