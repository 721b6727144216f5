package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode               string   `yaml:"mode"`
	Exchange           string   `yaml:"exchange"`
	QuoteAsset         string   `yaml:"quote_asset"`
	Symbols            []string `yaml:"symbols"`
	DailyResetTimezone string   `yaml:"daily_reset_timezone"`

	Intervals struct {
		DecisionSeconds         int `yaml:"decision_seconds"`
		OpenPositionRecheckSecs int `yaml:"open_position_recheck_seconds"`
		ReconcileSeconds        int `yaml:"reconcile_seconds"`
		BalanceRefreshSeconds   int `yaml:"balance_refresh_seconds"`
		ExitPollSeconds         int `yaml:"exit_poll_seconds"`
	} `yaml:"intervals"`

	Limits struct {
		MaxLeveragePerTrade     int     `yaml:"max_leverage_per_trade"`
		MaxPositionSizePercent  float64 `yaml:"max_position_size_percent"`
		MaxTotalExposurePercent float64 `yaml:"max_total_exposure_percent"`
		MaxHoldMinutes          int     `yaml:"max_hold_minutes"`
	} `yaml:"limits"`

	Fees struct {
		RatePerSide float64 `yaml:"rate_per_side"`
	} `yaml:"fees"`

	Trailing struct {
		ActivatePnlPercent float64 `yaml:"activate_pnl_percent"`
		TrailPercent       float64 `yaml:"trail_percent"`
	} `yaml:"trailing"`

	Gateway struct {
		BaseURL          string `yaml:"base_url"`
		WsURL            string `yaml:"ws_url"`
		RecvWindowMs     int    `yaml:"recv_window_ms"`
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
		OrdersPerWindow  int    `yaml:"orders_per_window"`
		WindowSeconds    int    `yaml:"window_seconds"`
		TimeSyncMinutes  int    `yaml:"time_sync_minutes"`
		MarginMode       string `yaml:"margin_mode"`
	} `yaml:"gateway"`

	LLM struct {
		Provider      string  `yaml:"provider"`
		Model         string  `yaml:"model"`
		MaxTokens     int     `yaml:"max_tokens"`
		Temperature   float32 `yaml:"temperature"`
		System        string  `yaml:"system"`
		Schema        string  `yaml:"schema"`
		Prescreen     bool    `yaml:"prescreen"`
		HistoryTrades int     `yaml:"history_trades"`
	} `yaml:"llm"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Store struct {
		Dir string `yaml:"dir"`
	} `yaml:"store"`
}

// Secrets are the credentials loaded from the environment, never from YAML.
type Secrets struct {
	BinanceAPIKey    string `envconfig:"BINANCE_API_KEY"`
	BinanceSecretKey string `envconfig:"BINANCE_SECRET_KEY"`
	DiscordWebhook   string `envconfig:"DISCORD_WEBHOOK_URL"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Limits.MaxLeveragePerTrade < 1 || c.Limits.MaxLeveragePerTrade > 125 {
		return fmt.Errorf("limits.max_leverage_per_trade must be between 1-125, got %d", c.Limits.MaxLeveragePerTrade)
	}
	if c.Limits.MaxPositionSizePercent <= 0 || c.Limits.MaxPositionSizePercent > 100 {
		return fmt.Errorf("limits.max_position_size_percent must be between 0-100, got %.2f", c.Limits.MaxPositionSizePercent)
	}
	if c.Limits.MaxTotalExposurePercent <= 0 || c.Limits.MaxTotalExposurePercent > 100 {
		return fmt.Errorf("limits.max_total_exposure_percent must be between 0-100, got %.2f", c.Limits.MaxTotalExposurePercent)
	}
	if c.Limits.MaxHoldMinutes <= 0 {
		return fmt.Errorf("limits.max_hold_minutes must be positive, got %d", c.Limits.MaxHoldMinutes)
	}
	if c.Fees.RatePerSide < 0 || c.Fees.RatePerSide > 0.01 {
		return fmt.Errorf("fees.rate_per_side must be between 0-0.01, got %f", c.Fees.RatePerSide)
	}
	if _, err := time.LoadLocation(c.DailyResetTimezone); err != nil {
		return fmt.Errorf("invalid daily_reset_timezone '%s': %w", c.DailyResetTimezone, err)
	}
	return nil
}

// Location resolves the configured daily-reset timezone. Validate has already
// checked it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DailyResetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MaxHoldDuration returns the maximum time a position may stay open.
func (c *Config) MaxHoldDuration() time.Duration {
	return time.Duration(c.Limits.MaxHoldMinutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Exchange == "" {
		c.Exchange = "binance"
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.DailyResetTimezone == "" {
		c.DailyResetTimezone = "UTC"
	}
	if c.Intervals.DecisionSeconds == 0 {
		c.Intervals.DecisionSeconds = 60
	}
	if c.Intervals.OpenPositionRecheckSecs == 0 {
		c.Intervals.OpenPositionRecheckSecs = 180
	}
	if c.Intervals.ReconcileSeconds == 0 {
		c.Intervals.ReconcileSeconds = 30
	}
	if c.Intervals.BalanceRefreshSeconds == 0 {
		c.Intervals.BalanceRefreshSeconds = 60
	}
	if c.Intervals.ExitPollSeconds == 0 {
		c.Intervals.ExitPollSeconds = 5
	}
	if c.Limits.MaxLeveragePerTrade == 0 {
		c.Limits.MaxLeveragePerTrade = 10
	}
	if c.Limits.MaxPositionSizePercent == 0 {
		c.Limits.MaxPositionSizePercent = 20
	}
	if c.Limits.MaxTotalExposurePercent == 0 {
		c.Limits.MaxTotalExposurePercent = 60
	}
	if c.Limits.MaxHoldMinutes == 0 {
		c.Limits.MaxHoldMinutes = 45
	}
	if c.Fees.RatePerSide == 0 {
		c.Fees.RatePerSide = 0.0002
	}
	if c.Trailing.ActivatePnlPercent == 0 {
		c.Trailing.ActivatePnlPercent = 30
	}
	if c.Trailing.TrailPercent == 0 {
		c.Trailing.TrailPercent = 0.3
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "https://fapi.binance.com"
	}
	if c.Gateway.WsURL == "" {
		c.Gateway.WsURL = "wss://fstream.binance.com/ws"
	}
	if c.Gateway.RecvWindowMs == 0 {
		c.Gateway.RecvWindowMs = 5000
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 10
	}
	if c.Gateway.OrdersPerWindow == 0 {
		c.Gateway.OrdersPerWindow = 5
	}
	if c.Gateway.WindowSeconds == 0 {
		c.Gateway.WindowSeconds = 10
	}
	if c.Gateway.TimeSyncMinutes == 0 {
		c.Gateway.TimeSyncMinutes = 30
	}
	if c.Gateway.MarginMode == "" {
		c.Gateway.MarginMode = "ISOLATED"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NOOP"
	}
	if c.LLM.HistoryTrades == 0 {
		c.LLM.HistoryTrades = 20
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "logs"
	}
}

// LoadSecrets reads credentials from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("environment processing failed: %w", err)
	}
	return &s, nil
}
