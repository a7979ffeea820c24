package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "azi",
	Short: "azi - Show Azure information",
	Long: `azi is a command line tool for looking at Azure subscriptions.

It lists resource groups and resources, DNS records, public IP addresses
and costs, and executes raw Resource Manager requests.

Credentials are shared with the Azure CLI: tokens are read from and written
to ~/.azure/accessTokens.json. When no usable token is cached, azi prints
a device code and waits for you to sign in with a browser.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rootFlags struct {
	configFile string
	tenant     string
	output     formatFlag
	debug      bool
	trace      bool
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which also stops a pending device code sign-in.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootFlags.configFile, "config", "c", "", "config file (default is ./.azirc, then $HOME/.azirc)")
	flags.StringVarP(&rootFlags.tenant, "tenant", "t", "", "tenant id or domain name (default is the Azure CLI's default tenant)")
	flags.VarP(&rootFlags.output, "output", "o", "output format (text|json|yaml)")
	flags.BoolVar(&rootFlags.debug, "debug", false, "show debugging output")
	flags.BoolVar(&rootFlags.trace, "trace", false, "show even more debugging output")
}
