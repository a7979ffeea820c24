package cmd

import (
	"github.com/spf13/cobra"
)

var ipCmd = &cobra.Command{
	Use:   "ip",
	Short: "Show currently used IP addresses",
	Long: `Show the allocated public IP addresses of every subscription, grouped by
resource group. Unallocated addresses are skipped.

Examples:
  azi ip`,
	Args: cobra.NoArgs,
	RunE: runIP,
}

func init() {
	rootCmd.AddCommand(ipCmd)
}

func runIP(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	results, err := a.service.IPs(cmd.Context())
	if err != nil {
		return err
	}
	return a.printer.IPs(results)
}
