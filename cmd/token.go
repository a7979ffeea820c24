package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/output"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an access token",
	Long: `Print an access token for a resource, signing in if necessary.

In text format only the token itself is printed, so it can be used in
scripts. JSON and YAML output include the expiry and the signed-in user.

Examples:
  curl -H "Authorization: Bearer $(azi token)" https://management.azure.com/...
  azi token --resource https://graph.windows.net/ -o json`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var tokenResource string

func init() {
	rootCmd.AddCommand(tokenCmd)
	addResourceFlag(tokenCmd.Flags(), &tokenResource)
}

// tokenInfo is the printable view of a token set. The refresh token is
// never printed.
type tokenInfo struct {
	Resource    string    `json:"resource" yaml:"resource"`
	User        string    `json:"user" yaml:"user"`
	Tenant      string    `json:"tenant" yaml:"tenant"`
	ClientID    string    `json:"clientId" yaml:"clientId"`
	ExpiresOn   time.Time `json:"expiresOn" yaml:"expiresOn"`
	Expired     bool      `json:"expired" yaml:"expired"`
	AccessToken string    `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
}

func newTokenInfo(set *auth.TokenSet) tokenInfo {
	return tokenInfo{
		Resource:  set.Resource,
		User:      set.AccessToken.UniqueName,
		Tenant:    set.AccessToken.Tenant.ID,
		ClientID:  set.AccessToken.AppID,
		ExpiresOn: set.AccessToken.ExpiryTime().UTC(),
		Expired:   set.AccessToken.IsExpired(),
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	set, err := a.engine.GetToken(cmd.Context(), a.cfg.Auth.ClientID, tokenResource)
	if err != nil {
		return err
	}

	if a.printer.Format() == output.FormatText {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), set.AccessToken.Raw)
		return err
	}
	info := newTokenInfo(set)
	info.AccessToken = set.AccessToken.Raw
	return a.printer.Structured(info)
}
