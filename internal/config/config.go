package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration file for a backtest run.
type Config struct {
	Storage    Storage             `yaml:"storage"`
	Alpaca     Alpaca              `yaml:"alpaca"`
	Logging    Logging             `yaml:"logging"`
	Run        RunConfig           `yaml:"run"`
	Universe   map[string][]string `yaml:"universe"`
	Providers  []ProviderConfig    `yaml:"providers"`
	Strategies []StrategyConfig    `yaml:"strategies"`
	Allocation AllocationConfig    `yaml:"allocation"`
}

// Storage holds paths for data and result persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ResultsDir string `yaml:"results_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// RunConfig holds the simulation parameters shared by every strategy.
type RunConfig struct {
	CalendarName string `yaml:"calendar_name"`
	TradingTime  string `yaml:"trading_time"`
	DeltaToClose string `yaml:"delta_to_close"`
	Lookback     string `yaml:"lookback"`
	Lookahead    string `yaml:"lookahead"`
	MaxWorkers   int    `yaml:"max_workers"`
}

// ProviderConfig binds one (asset class, data type) pair to a data provider.
type ProviderConfig struct {
	AssetClass string `yaml:"asset_class"`
	DataType   string `yaml:"data_type"`
	Provider   string `yaml:"provider"`
}

// StrategyConfig configures one strategy instance.
type StrategyConfig struct {
	Name             string             `yaml:"name"`
	Type             string             `yaml:"type"`
	AssetClass       string             `yaml:"asset_class"`
	Symbols          []string           `yaml:"symbols"`
	TradeSizeDollars float64            `yaml:"trade_size_dollars"`
	StartingCash     float64            `yaml:"starting_cash"`
	HoldingPeriod    string             `yaml:"holding_period"`
	TradeType        string             `yaml:"trade_type"`
	Settings         map[string]float64 `yaml:"settings"`
}

// AllocationConfig selects where the allocation table comes from: a YAML
// table file, or a generated unit allocation covering every strategy on
// every run day. Setting both is a configuration error caught by the
// builder.
type AllocationConfig struct {
	Path         string `yaml:"path"`
	GenerateUnit bool   `yaml:"generate_unit"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

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

	if v := os.Getenv("RESULTS_DIR"); v != "" {
		cfg.Storage.ResultsDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// The SDK's canonical env var names win over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
