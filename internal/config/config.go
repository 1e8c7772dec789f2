package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantlab platform.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Strategies StrategiesConfig `yaml:"strategies"`
}

// Storage holds persistence settings. Driver selects the run/strategy store
// backend: "sqlite" (default) or "postgres".
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MarketDataConfig controls where price bars come from. Providers lists the
// sources tried in order ("parquet", "alpaca", "synthetic"); the first one
// returning bars wins.
type MarketDataConfig struct {
	Providers       []string        `yaml:"providers"`
	RateLimitPerMin int             `yaml:"rate_limit_per_min"`
	Synthetic       SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig parameterises the deterministic sample-data generator.
// Symbols maps a ticker to its price profile; unlisted symbols fall back to
// DefaultProfile.
type SyntheticConfig struct {
	Seed           int64                    `yaml:"seed"`
	Symbols        map[string]SymbolProfile `yaml:"symbols"`
	DefaultProfile SymbolProfile            `yaml:"default_profile"`
}

// SymbolProfile describes the starting price and daily volatility used when
// generating synthetic bars for a symbol.
type SymbolProfile struct {
	BasePrice  float64 `yaml:"base_price"`
	Volatility float64 `yaml:"volatility"`
}

// StrategiesConfig controls where strategy documents are loaded from when
// not using the database-backed store.
type StrategiesConfig struct {
	Dir string `yaml:"dir"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "quantlab.db"
	}
	if len(cfg.MarketData.Providers) == 0 {
		cfg.MarketData.Providers = []string{"parquet"}
	}
	if cfg.MarketData.RateLimitPerMin == 0 {
		cfg.MarketData.RateLimitPerMin = 200
	}
	if cfg.MarketData.Synthetic.DefaultProfile.BasePrice == 0 {
		cfg.MarketData.Synthetic.DefaultProfile.BasePrice = 100
	}
	if cfg.MarketData.Synthetic.DefaultProfile.Volatility == 0 {
		cfg.MarketData.Synthetic.DefaultProfile.Volatility = 0.02
	}
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
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
