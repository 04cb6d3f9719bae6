// Package config defines all configuration for the market-making bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"spotmaker/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ExchangeConfig holds the venue's REST/WS endpoints and private API
// credentials for HMAC-signed requests.
type ExchangeConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSURL       string `mapstructure:"ws_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`
}

// StrategyConfig tunes the order-management engine.
type StrategyConfig struct {
	ProductID            string        `mapstructure:"product_id"`
	QuoteCurrency        string        `mapstructure:"quote_currency"`
	MaxSpread            float64       `mapstructure:"max_spread"`
	MinSpread            float64       `mapstructure:"min_spread"`
	StopPct              float64       `mapstructure:"stop_pct"`
	Interval             time.Duration `mapstructure:"interval"`
	WallSize             float64       `mapstructure:"wall_size"`
	SpendPct             float64       `mapstructure:"spend_pct"`
	MaxOpenBuys          int           `mapstructure:"max_open_buys"`
	MaxOpenSells         int           `mapstructure:"max_open_sells"`
	ManageExistingOrders bool          `mapstructure:"manage_existing_orders"`
	Aggressive           bool          `mapstructure:"aggressive"`
}

// StoreConfig sets where registry/fill checkpoint data is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults fills the zero-valued strategy fields that have a default
// (quote currency, spreads, stop/spend percentages, interval, open-order
// caps). Called after Load/Unmarshal so a
// bare-minimum YAML file still produces a runnable configuration.
func (c *Config) Defaults() {
	if c.Strategy.QuoteCurrency == "" {
		c.Strategy.QuoteCurrency = "USD"
	}
	if c.Strategy.MaxSpread == 0 {
		c.Strategy.MaxSpread = 0.10
	}
	if c.Strategy.MinSpread == 0 {
		c.Strategy.MinSpread = 0.05
	}
	if c.Strategy.StopPct == 0 {
		c.Strategy.StopPct = 0.05
	}
	if c.Strategy.Interval == 0 {
		c.Strategy.Interval = 2 * time.Second
	}
	if c.Strategy.SpendPct == 0 {
		c.Strategy.SpendPct = 0.01
	}
	if c.Strategy.MaxOpenBuys == 0 {
		c.Strategy.MaxOpenBuys = 6
	}
	if c.Strategy.MaxOpenSells == 0 {
		c.Strategy.MaxOpenSells = 12
	}
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MM_API_KEY, MM_API_SECRET, MM_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("strategy.manage_existing_orders", true)
	v.SetDefault("strategy.aggressive", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Defaults()

	if key := os.Getenv("MM_API_KEY"); key != "" {
		cfg.Exchange.ApiKey = key
	}
	if secret := os.Getenv("MM_API_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if pass := os.Getenv("MM_PASSPHRASE"); pass != "" {
		cfg.Exchange.Passphrase = pass
	}
	if v := os.Getenv("MM_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Strategy.ProductID == "" {
		return &types.ConfigError{Field: "strategy.product_id", Err: fmt.Errorf("required")}
	}
	if c.Exchange.RESTBaseURL == "" {
		return fmt.Errorf("exchange.rest_base_url is required")
	}
	if c.Strategy.MaxSpread <= 0 {
		return fmt.Errorf("strategy.max_spread must be > 0")
	}
	if c.Strategy.MinSpread <= 0 || c.Strategy.MinSpread > c.Strategy.MaxSpread {
		return fmt.Errorf("strategy.min_spread must be > 0 and <= max_spread")
	}
	if c.Strategy.StopPct < 0 || c.Strategy.StopPct >= 1 {
		return fmt.Errorf("strategy.stop_pct must be in [0, 1)")
	}
	if c.Strategy.SpendPct <= 0 || c.Strategy.SpendPct > 1 {
		return fmt.Errorf("strategy.spend_pct must be in (0, 1]")
	}
	if c.Strategy.MaxOpenBuys <= 0 {
		return fmt.Errorf("strategy.max_open_buys must be > 0")
	}
	if c.Strategy.MaxOpenSells <= 0 {
		return fmt.Errorf("strategy.max_open_sells must be > 0")
	}
	return nil
}
