package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
mode: DRY_RUN
symbols: [BTCUSDT]
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Exchange)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.Equal(t, "UTC", cfg.DailyResetTimezone)
	assert.Equal(t, 60, cfg.Intervals.DecisionSeconds)
	assert.Equal(t, 180, cfg.Intervals.OpenPositionRecheckSecs)
	assert.Equal(t, 10, cfg.Limits.MaxLeveragePerTrade)
	assert.InDelta(t, 0.0002, cfg.Fees.RatePerSide, 1e-12)
	assert.Equal(t, "ISOLATED", cfg.Gateway.MarginMode)
	assert.Equal(t, "NOOP", cfg.LLM.Provider)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 45*time.Minute, cfg.MaxHoldDuration())
}

func TestLoadConfigOverrides(t *testing.T) {
	p := writeConfig(t, `
mode: LIVE
symbols: [BTCUSDT, ETHUSDT]
daily_reset_timezone: America/New_York
limits:
  max_leverage_per_trade: 20
  max_hold_minutes: 30
llm:
  provider: OPENAI
  model: gpt-4o-mini
  prescreen: true
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "LIVE", cfg.Mode)
	assert.Equal(t, 20, cfg.Limits.MaxLeveragePerTrade)
	assert.Equal(t, 30*time.Minute, cfg.MaxHoldDuration())
	assert.True(t, cfg.LLM.Prescreen)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config {
		var c Config
		c.Mode = "DRY_RUN"
		c.Symbols = []string{"BTCUSDT"}
		c.DailyResetTimezone = "UTC"
		applyDefaults(&c)
		return &c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "PAPER" }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"leverage too high", func(c *Config) { c.Limits.MaxLeveragePerTrade = 200 }},
		{"size over 100", func(c *Config) { c.Limits.MaxPositionSizePercent = 150 }},
		{"exposure zero", func(c *Config) { c.Limits.MaxTotalExposurePercent = -1 }},
		{"hold negative", func(c *Config) { c.Limits.MaxHoldMinutes = -5 }},
		{"fee absurd", func(c *Config) { c.Fees.RatePerSide = 0.5 }},
		{"bad timezone", func(c *Config) { c.DailyResetTimezone = "Mars/Olympus" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
