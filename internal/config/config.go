package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when OPTLAB_CONFIG is unset.
const DefaultPath = "config/optlab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for optlab.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Server     Server     `yaml:"server"`
	Alpaca     Alpaca     `yaml:"alpaca"`
	Logging    Logging    `yaml:"logging"`
	MarketData MarketData `yaml:"market_data"`
	Backtest   Backtest   `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MarketData selects where backtests get their spot prices.
type MarketData struct {
	Source          string  `yaml:"source"` // random, parquet or alpaca
	Symbol          string  `yaml:"symbol"`
	Market          string  `yaml:"market"`
	StartPrice      float64 `yaml:"start_price"`
	DailyVol        float64 `yaml:"daily_vol"`
	Seed            uint64  `yaml:"seed"`
	RateLimitPerMin int     `yaml:"rate_limit_per_min"`
}

// Backtest holds the engine's pricing and accounting knobs.
type Backtest struct {
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	Volatility     float64 `yaml:"volatility"`
	StrikeInterval float64 `yaml:"strike_interval"`
	MinCapitalPct  float64 `yaml:"min_capital_pct"`
	EquityMode     string  `yaml:"equity_mode"`
	LiquidateAtEnd *bool   `yaml:"liquidate_at_end"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
}

// Liquidate reports whether a position still open on the last day is closed.
// Unset means true.
func (b Backtest) Liquidate() bool {
	return b.LiquidateAtEnd == nil || *b.LiquidateAtEnd
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path: OPTLAB_CONFIG if set, otherwise
// DefaultPath.
func Path() string {
	if v := os.Getenv("OPTLAB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and then fills
// defaults for anything still unset.
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
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration built from defaults and the environment
// alone, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/optlab.db"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}

	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	md := &cfg.MarketData
	if md.Source == "" {
		md.Source = "random"
	}
	if md.Symbol == "" {
		md.Symbol = "NIFTY"
	}
	if md.Market == "" {
		md.Market = "in"
	}
	if md.StartPrice == 0 {
		md.StartPrice = 21500
	}
	if md.DailyVol == 0 {
		md.DailyVol = 0.01
	}
	if md.Seed == 0 {
		md.Seed = 1
	}
	if md.RateLimitPerMin == 0 {
		md.RateLimitPerMin = 200
	}

	bt := &cfg.Backtest
	if bt.RiskFreeRate == 0 {
		bt.RiskFreeRate = 0.06
	}
	if bt.Volatility == 0 {
		bt.Volatility = 0.20
	}
	if bt.StrikeInterval == 0 {
		bt.StrikeInterval = 50
	}
	if bt.MinCapitalPct == 0 {
		bt.MinCapitalPct = 0.20
	}
	if bt.EquityMode == "" {
		bt.EquityMode = "mark_to_market"
	}
	if bt.MaxConcurrent == 0 {
		bt.MaxConcurrent = 4
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

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("OPTLAB_MARKET_DATA"); v != "" {
		cfg.MarketData.Source = v
	}

	if v := os.Getenv("OPTLAB_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Standard Alpaca env vars (highest priority, the SDK's canonical names).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
