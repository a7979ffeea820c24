package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing resource groups",
	Long: `List all subscriptions visible to the signed-in user with their resource
groups. With --resources, the resources of each group are listed as well.

Examples:
  azi list
  azi list --resources
  azi list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listResources bool

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listResources, "resources", "r", false, "Also list all resources")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	results, err := a.service.List(cmd.Context(), listResources)
	if err != nil {
		return err
	}
	return a.printer.List(results)
}
