package cmd

import (
	"github.com/spf13/cobra"
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Show DNS records and mapped IP addresses",
	Long: `Show the A and CNAME records of every DNS zone in every subscription.

Examples:
  azi dns
  azi dns -o yaml`,
	Args: cobra.NoArgs,
	RunE: runDNS,
}

func init() {
	rootCmd.AddCommand(dnsCmd)
}

func runDNS(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	results, err := a.service.DNS(cmd.Context())
	if err != nil {
		return err
	}
	return a.printer.DNS(results)
}
