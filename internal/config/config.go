package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the alphaloop research loop.
// Every run receives its limits from here explicitly; there are no mutable
// package-level defaults.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`    // Parquet bar files
	SQLitePath string `yaml:"sqlite_path"` // iteration history database
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	BaseURL      string `yaml:"base_url"`
	DataURL      string `yaml:"data_url"`
	EarningsPath string `yaml:"earnings_path"` // JSON earnings calendar file
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines default simulation parameters. Individual runs may
// override any of these.
type BacktestConfig struct {
	InitialCapital         float64 `yaml:"initial_capital"`
	Commission             float64 `yaml:"commission"`   // flat, per trade
	SlippagePct            float64 `yaml:"slippage_pct"` // percent of fill price
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	TimeoutSeconds         int     `yaml:"timeout_seconds"`
}

// AggregatorConfig bounds the signal filtering pipeline and the per-candidate
// template simulations.
type AggregatorConfig struct {
	MinPatternStrength      float64 `yaml:"min_pattern_strength"`
	MaxPerTickerDate        int     `yaml:"max_per_ticker_date"`
	MaxPerDate              int     `yaml:"max_per_date"`
	MaxSignalsPerIteration  int     `yaml:"max_signals_per_iteration"`
	MaxWorkers              int     `yaml:"max_workers"`
	CandidateTimeoutSeconds int     `yaml:"candidate_timeout_seconds"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills in
// defaults for unset numeric limits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca env vars used by the SDK take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued limits with working defaults so a minimal
// config file still produces a runnable system.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 10000
	}
	if cfg.Backtest.MaxConcurrentPositions == 0 {
		cfg.Backtest.MaxConcurrentPositions = 1
	}
	if cfg.Backtest.TimeoutSeconds == 0 {
		cfg.Backtest.TimeoutSeconds = 120
	}
	if cfg.Aggregator.MaxPerTickerDate == 0 {
		cfg.Aggregator.MaxPerTickerDate = 2
	}
	if cfg.Aggregator.MaxPerDate == 0 {
		cfg.Aggregator.MaxPerDate = 10
	}
	if cfg.Aggregator.MaxSignalsPerIteration == 0 {
		cfg.Aggregator.MaxSignalsPerIteration = 50
	}
	if cfg.Aggregator.MaxWorkers == 0 {
		cfg.Aggregator.MaxWorkers = 4
	}
	if cfg.Aggregator.CandidateTimeoutSeconds == 0 {
		cfg.Aggregator.CandidateTimeoutSeconds = 60
	}
}
