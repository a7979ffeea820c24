package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current authentication status",
	Long: `Display the tenant azi signs in to and the tokens in the token cache.

No tokens are requested or refreshed.

Examples:
  azi status
  azi status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusInfo struct {
	Tenant     string      `json:"tenant" yaml:"tenant"`
	TokenCache string      `json:"tokenCache" yaml:"tokenCache"`
	Tokens     []tokenInfo `json:"tokens" yaml:"tokens"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	status := statusInfo{
		Tenant:     a.engine.Tenant().ID,
		TokenCache: a.cache.Path(),
		Tokens:     []tokenInfo{},
	}
	for _, set := range a.engine.TokenSets() {
		status.Tokens = append(status.Tokens, newTokenInfo(&set))
	}

	if a.printer.Format() != output.FormatText {
		return a.printer.Structured(status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tenant:      %s\n", status.Tenant)
	fmt.Fprintf(out, "Token cache: %s\n\n", status.TokenCache)

	if len(status.Tokens) == 0 {
		fmt.Fprintln(out, "No cached tokens. Run 'azi login' to sign in.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tUSER\tTENANT\tEXPIRES\tSTATUS")
	fmt.Fprintln(w, "--------\t----\t------\t-------\t------")
	for _, token := range status.Tokens {
		state := "valid"
		if token.Expired {
			state = "expired"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			token.Resource, token.User, token.Tenant, token.ExpiresOn.Local().Format(time.DateTime), state)
	}
	return w.Flush()
}
