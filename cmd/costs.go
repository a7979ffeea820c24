package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/service"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show costs per resource group",
	Long: `Show the actual costs of every subscription grouped by resource group.

Without --from and --to, the current month to date is reported. When one of
them is given, both are required.

Examples:
  azi costs
  azi costs --from 2024-01-01 --to 2024-01-31`,
	Args: cobra.NoArgs,
	RunE: runCosts,
}

var costsFlags struct {
	from dateFlag
	to   dateFlag
}

func init() {
	rootCmd.AddCommand(costsCmd)
	costsCmd.Flags().Var(&costsFlags.from, "from", "Start of the period (YYYY-MM-DD)")
	costsCmd.Flags().Var(&costsFlags.to, "to", "End of the period (YYYY-MM-DD)")
}

func costsTimeframe() (service.Timeframe, error) {
	timeframe := service.Timeframe{From: costsFlags.from.String(), To: costsFlags.to.String()}
	if timeframe.IsCustom() && (timeframe.From == "" || timeframe.To == "") {
		return service.Timeframe{}, fmt.Errorf("--from and --to must be used together")
	}
	if timeframe.IsCustom() && timeframe.From > timeframe.To {
		return service.Timeframe{}, fmt.Errorf("--from %s is after --to %s", timeframe.From, timeframe.To)
	}
	return timeframe, nil
}

func runCosts(cmd *cobra.Command, args []string) error {
	timeframe, err := costsTimeframe()
	if err != nil {
		return err
	}

	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	results, err := a.service.CostReport(cmd.Context(), timeframe)
	if err != nil {
		return err
	}
	return a.printer.Costs(results)
}
