package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/evandepol/homewatch/audit"
	"github.com/evandepol/homewatch/config"
)

var auditSince time.Duration

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay the analysis audit trail",
	Long: `Replay recorded analysis calls from the audit trail.

Each analysis call the agent makes is appended to a JSONL trail with its
provider, prompt, response, token usage, and cost. This command prints
those records for inspection.`,
	Example: `  homewatch audit                # Everything on disk
  homewatch audit --since 24h    # Last day only`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to YAML config file")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only records newer than this age")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	auditDir := cfg.Audit.Dir
	if auditDir == "" {
		auditDir = filepath.Join(cfg.DataDir, "audit")
	}

	since := time.Time{}
	if auditSince > 0 {
		since = time.Now().Add(-auditSince)
	}

	encoder := json.NewEncoder(os.Stdout)
	count := 0
	err = audit.Replay(auditDir, since, func(record *audit.Record) error {
		count++
		return encoder.Encode(record)
	})
	if err != nil {
		return fmt.Errorf("replay audit trail: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d record(s)\n", count)
	return nil
}
