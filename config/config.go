// Package config handles YAML configuration for homewatch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how the provider policy picks an analysis tier.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeOnlineOnly Mode = "online_only"
	ModeLocalFirst Mode = "local_first"
	ModeMockOnly   Mode = "mock_only"
)

// Config is the root configuration structure.
type Config struct {
	Mode             Mode          `yaml:"mode"`
	Model            string        `yaml:"model"`
	IntervalStr      string        `yaml:"check_interval"`
	Interval         time.Duration `yaml:"-"`
	InsightThreshold float64       `yaml:"insight_threshold"`
	Scope            []string      `yaml:"monitoring_scope"`
	DataDir          string        `yaml:"data_dir"`

	HomeAssistant HomeAssistantConfig     `yaml:"home_assistant"`
	Budget        BudgetConfig            `yaml:"budget"`
	Backoff       BackoffConfig           `yaml:"backoff"`
	Local         LocalConfig             `yaml:"local"`
	Pricing       map[string]ModelPricing `yaml:"pricing,omitempty"`
	Audit         AuditConfig             `yaml:"audit"`
	Notify        NotifyConfig            `yaml:"notify"`
	Web           WebConfig               `yaml:"web"`
	Log           LogConfig               `yaml:"log"`
}

// HomeAssistantConfig holds state source settings.
type HomeAssistantConfig struct {
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	TimeoutStr string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// BudgetConfig bounds daily spend on the paid tier.
type BudgetConfig struct {
	DailyCostLimitUSD float64 `yaml:"daily_cost_limit_usd"`
	DailyRequestLimit int     `yaml:"daily_request_limit"`
}

// BackoffConfig controls the rate-limit backoff schedule.
type BackoffConfig struct {
	InitialSeconds int  `yaml:"initial_seconds"`
	CeilingSeconds int  `yaml:"ceiling_seconds"`
	ResetOnSuccess bool `yaml:"reset_on_success"`
}

// LocalConfig holds local-tier settings.
type LocalConfig struct {
	Enabled    bool    `yaml:"enabled"`
	BaseURL    string  `yaml:"base_url"`
	MaxCPULoad float64 `yaml:"max_cpu_load"`
}

// ModelPricing is per-1k-token pricing for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// AuditConfig controls the per-call audit trail.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	EchoStdout bool   `yaml:"echo_stdout"`
}

// NotifyConfig controls insight notification dispatch.
type NotifyConfig struct {
	Service      string `yaml:"service"`
	OnAnyInsight bool   `yaml:"on_any_insight"`
}

// WebConfig holds the status web server settings.
type WebConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses a YAML config file, then applies environment
// overrides and defaults. A missing file is not an error; the environment
// alone can fully configure the service (add-on deployments work that way).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMEWATCH_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("HOMEWATCH_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("HOMEWATCH_CHECK_INTERVAL"); v != "" {
		cfg.IntervalStr = v
	}
	if v := os.Getenv("HOMEWATCH_INSIGHT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.InsightThreshold = f
		}
	}
	if v := os.Getenv("HOMEWATCH_COST_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Budget.DailyCostLimitUSD = f
		}
	}
	if v := os.Getenv("HOMEWATCH_MAX_DAILY_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.DailyRequestLimit = n
		}
	}
	if v := os.Getenv("HOMEWATCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HOMEWATCH_LOCAL_ENABLED"); v != "" {
		cfg.Local.Enabled = v == "true"
	}
	if v := os.Getenv("HOMEWATCH_LOCAL_BASE_URL"); v != "" {
		cfg.Local.BaseURL = v
	}
	if v := os.Getenv("HOMEWATCH_LOCAL_MAX_CPU_LOAD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Local.MaxCPULoad = f
		}
	}
	if v := os.Getenv("HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("SUPERVISOR_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := os.Getenv("HOMEWATCH_NOTIFICATION_SERVICE"); v != "" {
		cfg.Notify.Service = v
	}
	if v := os.Getenv("HOMEWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.IntervalStr == "" {
		cfg.IntervalStr = "30s"
	}
	if cfg.InsightThreshold == 0 {
		cfg.InsightThreshold = 0.8
	}
	if len(cfg.Scope) == 0 {
		cfg.Scope = []string{"climate", "security", "energy"}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "/data/homewatch"
	}
	if cfg.HomeAssistant.URL == "" {
		cfg.HomeAssistant.URL = "http://supervisor/core"
	}
	if cfg.HomeAssistant.TimeoutStr == "" {
		cfg.HomeAssistant.TimeoutStr = "30s"
	}
	if cfg.Budget.DailyCostLimitUSD == 0 {
		cfg.Budget.DailyCostLimitUSD = 1.00
	}
	if cfg.Budget.DailyRequestLimit == 0 {
		cfg.Budget.DailyRequestLimit = 1000
	}
	if cfg.Backoff.InitialSeconds == 0 {
		cfg.Backoff.InitialSeconds = 60
	}
	if cfg.Backoff.CeilingSeconds == 0 {
		cfg.Backoff.CeilingSeconds = 3600
	}
	if cfg.Local.MaxCPULoad == 0 {
		cfg.Local.MaxCPULoad = 1.5
	}
	if cfg.Notify.Service == "" {
		cfg.Notify.Service = "persistent_notification"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8099
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse check_interval %q: %w", cfg.IntervalStr, err)
	}
	cfg.Interval = d

	t, err := time.ParseDuration(cfg.HomeAssistant.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse home_assistant.timeout %q: %w", cfg.HomeAssistant.TimeoutStr, err)
	}
	cfg.HomeAssistant.Timeout = t
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAuto, ModeOnlineOnly, ModeLocalFirst, ModeMockOnly:
	default:
		return fmt.Errorf("mode must be one of auto, online_only, local_first, mock_only (got %q)", c.Mode)
	}
	if c.InsightThreshold < 0 || c.InsightThreshold > 1 {
		return fmt.Errorf("insight_threshold must be between 0.0 and 1.0 (got %v)", c.InsightThreshold)
	}
	if c.Budget.DailyCostLimitUSD < 0 {
		return fmt.Errorf("budget: daily_cost_limit_usd must not be negative")
	}
	if c.Budget.DailyRequestLimit < 0 {
		return fmt.Errorf("budget: daily_request_limit must not be negative")
	}
	if c.Backoff.CeilingSeconds < c.Backoff.InitialSeconds {
		return fmt.Errorf("backoff: ceiling_seconds must be >= initial_seconds")
	}
	return nil
}
