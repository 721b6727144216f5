// Package claude implements the decision provider against the Anthropic
// messages API.
package claude

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"scalp-trading-bot/internal/api"
	"scalp-trading-bot/internal/llm"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

const messagesPath = "/v1/messages"

type Decider struct {
	cfg    *store.Config
	client *api.Client
}

func New(cfg *store.Config) *Decider {
	baseURL := "https://api.anthropic.com"
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		baseURL = ep
	}
	return &Decider{
		cfg: cfg,
		client: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(60*time.Second),
			api.WithHeader("x-api-key", os.Getenv("CLAUDE_API_KEY")),
			api.WithHeader("anthropic-version", "2023-06-01"),
			api.WithLogging(true),
		),
	}
}

func (d *Decider) Screen(ctx context.Context, symbol string, price float64) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "claude.Screen")
	defer span.End()

	out, err := d.complete(ctx, llm.ScreenPrompt(symbol, price), 16)
	if err != nil {
		return false, err
	}
	return llm.ParseScreen(out), nil
}

func (d *Decider) Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "claude.Recommend")
	defer span.End()

	out, err := d.complete(ctx, llm.RecommendPrompt(d.cfg, snap, history), d.cfg.LLM.MaxTokens)
	if err != nil {
		return types.Recommendation{}, err
	}
	return llm.ParseRecommendation(out), nil
}

// OnTradeClosed logs the outcome; the realized trades are already fed back
// through the history handed to Recommend.
func (d *Decider) OnTradeClosed(ctx context.Context, trade types.ClosedTrade) error {
	logger.Debug(ctx, "Trade outcome recorded",
		"symbol", trade.Symbol, "reason", trade.ExitReason, "net_pnl_usd", trade.NetPnlUsd)
	return nil
}

func (d *Decider) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if os.Getenv("CLAUDE_API_KEY") == "" {
		return "", errors.New("CLAUDE_API_KEY missing")
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}

	body := map[string]any{
		"model":  d.cfg.LLM.Model,
		"system": llm.SystemPrompt(d.cfg),
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": d.cfg.LLM.Temperature,
		"max_tokens":  maxTokens,
	}

	req := api.NewRequest(http.MethodPost, messagesPath).
		WithContext(ctx).
		WithBody(body)
	resp, err := d.client.DoWithRetry(req, nil)
	if err != nil {
		return "", err
	}

	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	for _, c := range r.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			return strings.TrimSpace(c.Text), nil
		}
	}
	return "", errors.New("no text content in response")
}
