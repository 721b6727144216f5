// Package llm holds the pieces shared by the model-backed decision
// providers: prompt assembly and response parsing/normalization.
package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/types"
)

// DefaultSystem is the system prompt used when the config does not override
// it.
const DefaultSystem = "You are a disciplined leveraged-futures scalper. " +
	"You receive account and market state as JSON and respond ONLY with compact JSON matching the schema. " +
	"Prefer HOLD unless the edge is clear."

// DefaultSchema describes the recommendation object the model must emit.
const DefaultSchema = `{"action":"LONG|SHORT|HOLD","confidence":0.0,` +
	`"size_percent":0.0,"leverage":1,"stop_loss_percent":0.0,` +
	`"take_profit_percent":0.0,"rationale":"short reason"}`

// SystemPrompt resolves the configured system prompt.
func SystemPrompt(cfg *store.Config) string {
	if cfg.LLM.System != "" {
		return cfg.LLM.System
	}
	return DefaultSystem
}

// Schema resolves the configured response schema.
func Schema(cfg *store.Config) string {
	if cfg.LLM.Schema != "" {
		return cfg.LLM.Schema
	}
	return DefaultSchema
}

// RecommendPrompt builds the user message for a full recommendation call.
func RecommendPrompt(cfg *store.Config, snap types.MarketSnapshot, history []types.ClosedTrade) string {
	state := map[string]any{
		"snapshot":      snap,
		"recent_trades": history,
		"limits": map[string]any{
			"max_leverage":     cfg.Limits.MaxLeveragePerTrade,
			"max_size_percent": cfg.Limits.MaxPositionSizePercent,
		},
	}
	sb, _ := json.Marshal(state)
	return fmt.Sprintf("Schema:%s\nState:%s\n\nRespond ONLY with compact JSON matching the schema.",
		Schema(cfg), string(sb))
}

// ScreenPrompt builds the user message for the cheap pre-screen call.
func ScreenPrompt(symbol string, price float64) string {
	return fmt.Sprintf(
		`Symbol %s trades at %.8g. Is it worth a full scalping analysis right now? Respond ONLY with {"trade":true} or {"trade":false}.`,
		symbol, price)
}

// ParseRecommendation locates a JSON object in the model output and
// normalizes it. Unparsable output degrades to HOLD rather than erroring, so
// a chatty model never stops the decision cycle.
func ParseRecommendation(text string) types.Recommendation {
	var rec types.Recommendation
	if sub, ok := extractJSON(text); ok {
		if err := json.Unmarshal([]byte(sub), &rec); err != nil {
			return holdRecommendation("unparsable model output")
		}
		normalize(&rec)
		return rec
	}
	return holdRecommendation("no JSON in model output")
}

// ParseScreen reads the pre-screen verdict. Anything unparsable declines.
func ParseScreen(text string) bool {
	sub, ok := extractJSON(text)
	if !ok {
		return false
	}
	var v struct {
		Trade bool `json:"trade"`
	}
	if err := json.Unmarshal([]byte(sub), &v); err != nil {
		return false
	}
	return v.Trade
}

func extractJSON(text string) (string, bool) {
	t := strings.TrimSpace(text)
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return t[start : end+1], true
}

func holdRecommendation(why string) types.Recommendation {
	return types.Recommendation{Action: "HOLD", Rationale: why}
}

// normalize clamps the model output into sane ranges; the engine's open
// validation is still the authority on limits.
func normalize(rec *types.Recommendation) {
	rec.Action = strings.ToUpper(strings.TrimSpace(rec.Action))
	switch rec.Action {
	case "LONG", "BUY":
		rec.Action = string(types.SideLong)
	case "SHORT", "SELL":
		rec.Action = string(types.SideShort)
	default:
		rec.Action = "HOLD"
	}
	if rec.Confidence < 0 || rec.Confidence > 1 || math.IsNaN(rec.Confidence) {
		rec.Confidence = 0
	}
	for _, f := range []*float64{&rec.SizePercent, &rec.StopLoss, &rec.TakeProfit, &rec.StopLossPercent, &rec.TakeProfitPercent} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) || *f < 0 {
			*f = 0
		}
	}
	if rec.Leverage < 0 {
		rec.Leverage = 0
	}
}
