package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/output"
)

var inspectTokenCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Inspect an access token to view its claims",
	Long: `Decode and display the claims azi reads from an access token.

The token signature is NOT validated - this only decodes the payload. The
token is never sent anywhere.

Examples:
  azi inspect eyJ0eXAiOiJKV1QiLCJhbGciOiJSUzI1NiJ9...
  azi inspect "$(azi token)" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspectToken,
}

func init() {
	rootCmd.AddCommand(inspectTokenCmd)
}

type tokenClaims struct {
	AppID      string    `json:"appid" yaml:"appid"`
	ObjectID   string    `json:"oid" yaml:"oid"`
	UniqueName string    `json:"unique_name" yaml:"unique_name"`
	TenantID   string    `json:"tid" yaml:"tid"`
	ExpiresAt  time.Time `json:"exp" yaml:"exp"`
	Expired    bool      `json:"expired" yaml:"expired"`
}

func runInspectToken(cmd *cobra.Command, args []string) error {
	raw := strings.TrimSpace(args[0])
	if raw == "" {
		return fmt.Errorf("token cannot be empty")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	token, err := auth.ParseAccessToken(raw)
	if err != nil {
		return err
	}

	claims := tokenClaims{
		AppID:      token.AppID,
		ObjectID:   token.ObjectID,
		UniqueName: token.UniqueName,
		TenantID:   token.Tenant.ID,
		ExpiresAt:  token.ExpiryTime().UTC(),
		Expired:    token.IsExpired(),
	}
	if a.printer.Format() != output.FormatText {
		return a.printer.Structured(claims)
	}
	printTokenClaims(cmd, claims)
	return nil
}

func printTokenClaims(cmd *cobra.Command, claims tokenClaims) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Token Claims:")
	fmt.Fprintln(out, strings.Repeat("-", 40))

	fields := []struct {
		label string
		value string
	}{
		{"User", claims.UniqueName},
		{"Object ID", claims.ObjectID},
		{"Tenant", claims.TenantID},
		{"Client ID", claims.AppID},
		{"Expires At", claims.ExpiresAt.Local().Format(time.RFC3339)},
	}
	for _, field := range fields {
		fmt.Fprintf(out, "  %-12s %s\n", field.label+":", field.value)
	}

	fmt.Fprintln(out, strings.Repeat("-", 40))
	if claims.Expired {
		fmt.Fprintln(out, "\nThis token has expired.")
	}
}
