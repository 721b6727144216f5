package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/types"
)

func TestParseRecommendation(t *testing.T) {
	rec := ParseRecommendation(`{"action":"LONG","confidence":0.72,"size_percent":10,"leverage":5,"stop_loss_percent":1,"take_profit_percent":1.5,"rationale":"breakout"}`)
	assert.Equal(t, "LONG", rec.Action)
	assert.InDelta(t, 0.72, rec.Confidence, 1e-9)
	assert.Equal(t, 5, rec.Leverage)
	assert.InDelta(t, 1.5, rec.TakeProfitPercent, 1e-9)
}

func TestParseRecommendationChattyOutput(t *testing.T) {
	text := "Sure! Based on the momentum I would go long:\n```json\n" +
		`{"action":"buy","confidence":0.6,"size_percent":8,"leverage":3}` +
		"\n```\nGood luck!"
	rec := ParseRecommendation(text)
	assert.Equal(t, "LONG", rec.Action, "BUY maps onto the position side")
	assert.Equal(t, 3, rec.Leverage)
}

func TestParseRecommendationSellMapsShort(t *testing.T) {
	rec := ParseRecommendation(`{"action":"SELL","confidence":0.5,"size_percent":5,"leverage":2}`)
	assert.Equal(t, "SHORT", rec.Action)
}

func TestParseRecommendationDegradesToHold(t *testing.T) {
	cases := []string{
		"I cannot decide right now.",
		"",
		`{"action": broken json`,
		`{"action":"MAYBE","confidence":0.9}`,
	}
	for _, text := range cases {
		rec := ParseRecommendation(text)
		assert.Equal(t, "HOLD", rec.Action, "input %q", text)
	}
}

func TestParseRecommendationClampsBadNumbers(t *testing.T) {
	rec := ParseRecommendation(`{"action":"LONG","confidence":7,"size_percent":-10,"leverage":-3,"stop_loss":-1}`)
	assert.Zero(t, rec.Confidence, "out-of-range confidence clamps to 0")
	assert.Zero(t, rec.SizePercent)
	assert.Zero(t, rec.Leverage)
	assert.Zero(t, rec.StopLoss)
}

func TestParseScreen(t *testing.T) {
	assert.True(t, ParseScreen(`{"trade":true}`))
	assert.True(t, ParseScreen("Verdict: {\"trade\": true} as requested"))
	assert.False(t, ParseScreen(`{"trade":false}`))
	assert.False(t, ParseScreen("no json here"))
	assert.False(t, ParseScreen(`{"trade": "yes"}`))
}

func TestPromptsIncludeOverrides(t *testing.T) {
	cfg := &store.Config{}
	assert.Equal(t, DefaultSystem, SystemPrompt(cfg))
	assert.Equal(t, DefaultSchema, Schema(cfg))

	cfg.LLM.System = "custom system"
	cfg.LLM.Schema = `{"action":"HOLD"}`
	assert.Equal(t, "custom system", SystemPrompt(cfg))

	prompt := RecommendPrompt(cfg, types.MarketSnapshot{Symbol: "BTCUSDT", Price: 50000}, nil)
	assert.True(t, strings.Contains(prompt, cfg.LLM.Schema))
	assert.True(t, strings.Contains(prompt, "BTCUSDT"))
}
