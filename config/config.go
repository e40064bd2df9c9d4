package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sellflow/amount"
)

type Config struct {
	Sellflow SellflowConfig `yaml:"sellflow"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Poller   PollerConfig   `yaml:"poller"`
	Trading  TradingConfig  `yaml:"trading"`
	Notifier NotifierConfig `yaml:"notifier"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type SellflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ExchangeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type PollerConfig struct {
	// IdleDelay separates two polling cycles: the next cycle starts this
	// long after the previous one has fully drained.
	IdleDelay      time.Duration        `yaml:"idle_delay"`
	EventBuffer    int                  `yaml:"event_buffer"`
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type TradingConfig struct {
	// Market is the market code without the base pair prefix (e.g. "LTC"
	// for BTC-LTC). When set, it is selected at startup.
	Market string `yaml:"market"`
	// AutoStart toggles trading on as soon as the engine is up.
	AutoStart bool `yaml:"auto_start"`
	// OrderLimit is the target size of one order in BTC.
	OrderLimit string `yaml:"order_limit"`
	// DeviationPercent randomly inflates each order size by 0..N percent.
	DeviationPercent int `yaml:"deviation_percent"`
	// SellLimit is the cumulative proceeds cap in BTC; trading stops once
	// fills exhaust it.
	SellLimit string `yaml:"sell_limit"`
}

type NotifierConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// OrderLimitAmount parses the configured order size.
func (t TradingConfig) OrderLimitAmount() (amount.Amount, error) {
	return amount.Parse(t.OrderLimit)
}

// SellLimitAmount parses the configured cumulative sell budget. An empty
// value means no budget: trading stops on the first fill.
func (t TradingConfig) SellLimitAmount() (amount.Amount, error) {
	if t.SellLimit == "" {
		return 0, nil
	}
	return amount.Parse(t.SellLimit)
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Poller: PollerConfig{
			IdleDelay:   3 * time.Second,
			EventBuffer: 64,
			Timeout:     10 * time.Second,
		},
		Notifier: NotifierConfig{
			Interval: 30 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		config.Exchange.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		config.Exchange.APISecret = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Sellflow.Name == "" {
		return fmt.Errorf("sellflow.name is required")
	}

	if cfg.Sellflow.Version == "" {
		return fmt.Errorf("sellflow.version is required")
	}

	if cfg.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}

	if cfg.Poller.IdleDelay <= 0 {
		return fmt.Errorf("poller.idle_delay must be greater than 0")
	}
	if cfg.Poller.EventBuffer <= 0 {
		return fmt.Errorf("poller.event_buffer must be greater than 0")
	}
	if cfg.Poller.Timeout <= 0 {
		return fmt.Errorf("poller.timeout must be greater than 0")
	}

	if limit, err := cfg.Trading.OrderLimitAmount(); err != nil {
		return fmt.Errorf("trading.order_limit: %w", err)
	} else if limit <= 0 {
		return fmt.Errorf("trading.order_limit must be greater than 0")
	}
	if sellLimit, err := cfg.Trading.SellLimitAmount(); err != nil {
		return fmt.Errorf("trading.sell_limit: %w", err)
	} else if sellLimit < 0 {
		return fmt.Errorf("trading.sell_limit must not be negative")
	}
	if cfg.Trading.DeviationPercent < 0 || cfg.Trading.DeviationPercent > 100 {
		return fmt.Errorf("trading.deviation_percent must be between 0 and 100")
	}

	if cfg.Notifier.Enabled && cfg.Notifier.Interval <= 0 {
		return fmt.Errorf("notifier.interval must be greater than 0 when the notifier is enabled")
	}

	return nil
}
