package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "homewatch",
		Short: "Smart Home Monitoring Agent",
		Long: `Homewatch - Smart Home Monitoring Agent

Homewatch continuously polls your smart home platform, detects entity
state changes, and runs them through cost-governed analysis. Flagged
insights become notifications; every analysis call is budgeted and
audited.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Homewatch {{.Version}} - Smart Home Monitoring Agent
`)
}
