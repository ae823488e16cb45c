package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/evandepol/homewatch/analysis"
	"github.com/evandepol/homewatch/audit"
	"github.com/evandepol/homewatch/backoff"
	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/gateway"
	"github.com/evandepol/homewatch/hass"
	"github.com/evandepol/homewatch/insights"
	"github.com/evandepol/homewatch/ledger"
	"github.com/evandepol/homewatch/monitor"
	"github.com/evandepol/homewatch/policy"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/web"
)

var (
	runConfigPath string
	runEnvFile    string
	runDebug      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring agent",
	Long: `Run Homewatch in agent mode for continuous home monitoring.

The agent polls the platform state API at the configured interval, diffs
snapshots to detect entity state changes, and submits them for analysis
through the provider policy. Insights that require attention become
platform notifications.

Features:
- Continuous polling loop with per-cycle error isolation
- Daily cost and request budgets on the paid tier
- Rate-limit backoff with provider wait hints
- Append-only audit trail of every analysis call
- Status API and Prometheus metrics on one port
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  homewatch run                          # Run with env config
  homewatch run --config homewatch.yaml  # Explicit config file
  homewatch run --env .env               # Load a dotenv file first
  homewatch run --debug                  # Debug logging`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to YAML config file")
	runCmd.Flags().StringVar(&runEnvFile, "env", "", "Path to dotenv file loaded before config")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if runEnvFile != "" {
		if err := godotenv.Load(runEnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		// Best effort: a .env in the working directory is optional.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	setLogLevel(cfg.Log.Level)
	logger := telemetry.NewLogger("homewatch")

	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	otel.SetMeterProvider(provider)

	costs, err := ledger.Open(cfg.DataDir, cfg.Budget.DailyCostLimitUSD, cfg.Budget.DailyRequestLimit)
	if err != nil {
		return fmt.Errorf("open cost ledger: %w", err)
	}
	defer func() { _ = costs.Close() }()

	auditDir := cfg.Audit.Dir
	if auditDir == "" {
		auditDir = filepath.Join(cfg.DataDir, "audit")
	}
	trail, err := audit.Open(auditDir)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer func() { _ = trail.Close() }()
	if cfg.Audit.EchoStdout {
		trail.EchoTo(os.Stdout)
	}

	store, err := insights.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open insight store: %w", err)
	}
	defer func() { _ = store.Close() }()

	controller := backoff.New(cfg.Backoff.InitialSeconds, cfg.Backoff.CeilingSeconds)
	if cfg.Backoff.ResetOnSuccess {
		controller.EnableResetOnSuccess()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	gw := gateway.New(gateway.Config{
		Model:            cfg.Model,
		APIKey:           apiKey,
		BaseURL:          os.Getenv("OPENAI_BASE_URL"),
		Timeout:          60 * time.Second,
		InsightThreshold: cfg.InsightThreshold,
		Pricing:          pricingTable(cfg),
	}, controller, trail, logger)

	haClient := hass.NewClient(cfg.HomeAssistant, logger)
	manager := insights.NewManager(store, haClient, cfg.Notify, logger)
	selector := policy.New(cfg.Mode, cfg.Local, apiKey != "", controller, logger)

	metrics, err := monitor.NewMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	mon := monitor.New(cfg, haClient, gw, selector, costs, manager, metrics, logger)
	server := web.NewServer(cfg, mon, costs, controller, store, logger)

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("model", cfg.Model).
		Dur("interval", cfg.Interval).
		Bool("api_key", apiKey != "").
		Msg("homewatch starting")

	var group run.Group

	monCtx, monCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return mon.Run(monCtx)
	}, func(error) {
		monCancel()
	})

	group.Add(func() error {
		return server.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	group.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	err = group.Run()

	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		logger.Info().Msg("shutting down")
		return nil
	}
	return err
}

// pricingTable converts configured pricing overrides, falling back to the
// stock table when none are set.
func pricingTable(cfg *config.Config) analysis.PricingTable {
	if len(cfg.Pricing) == 0 {
		return analysis.DefaultPricing()
	}

	table := analysis.DefaultPricing()
	for model, p := range cfg.Pricing {
		table[model] = analysis.Pricing{
			InputPer1K:  p.InputPer1K,
			OutputPer1K: p.OutputPer1K,
		}
	}
	return table
}

func setLogLevel(level string) {
	if runDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
