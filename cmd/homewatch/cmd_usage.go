package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/ledger"
)

// usageCmd represents the usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show analysis spend against the daily budget",
	Long: `Show today's analysis spend, request count, and remaining budget,
plus rolling week and month totals from the cost ledger.`,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to YAML config file")
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	costs, err := ledger.Open(cfg.DataDir, cfg.Budget.DailyCostLimitUSD, cfg.Budget.DailyRequestLimit)
	if err != nil {
		return err
	}
	defer func() { _ = costs.Close() }()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(costs.UsageSummary())
}
