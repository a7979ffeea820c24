package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/output"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a device code",
	Long: `Make sure a valid access token is cached, signing in if necessary.

A cached token is used as is. An expired token is refreshed with the cached
refresh token. Only when no refresh token is usable, a device code is shown:
open the printed URL in any browser and enter the code to sign in.

Tokens are written to the Azure CLI's token cache, so signing in with either
tool works for both.

Examples:
  azi login
  azi login --tenant contoso.onmicrosoft.com`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var loginResource string

func init() {
	rootCmd.AddCommand(loginCmd)
	addResourceFlag(loginCmd.Flags(), &loginResource)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	set, err := a.engine.GetToken(cmd.Context(), a.cfg.Auth.ClientID, loginResource)
	if err != nil {
		return err
	}

	info := newTokenInfo(set)
	if a.printer.Format() != output.FormatText {
		return a.printer.Structured(info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (tenant %s)\n", info.User, info.Tenant)
	fmt.Fprintf(cmd.OutOrStdout(), "  Token valid until %s\n", info.ExpiresOn.Local().Format(time.RFC3339))
	return nil
}
