// Package openai implements the decision provider against the OpenAI chat
// completions API.
package openai

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

const completionsPath = "/v1/chat/completions"

type Decider struct {
	cfg    *store.Config
	client *api.Client
}

func New(cfg *store.Config) *Decider {
	baseURL := "https://api.openai.com"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		baseURL = ep
	}
	return &Decider{
		cfg: cfg,
		client: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(60*time.Second),
			api.WithHeader("Authorization", "Bearer "+os.Getenv("OPENAI_API_KEY")),
			api.WithLogging(true),
		),
	}
}

func (d *Decider) Screen(ctx context.Context, symbol string, price float64) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "openai.Screen")
	defer span.End()

	out, err := d.complete(ctx, llm.ScreenPrompt(symbol, price), 16)
	if err != nil {
		return false, err
	}
	return llm.ParseScreen(out), nil
}

func (d *Decider) Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "openai.Recommend")
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
	if os.Getenv("OPENAI_API_KEY") == "" {
		return "", errors.New("OPENAI_API_KEY missing")
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}

	body := map[string]any{
		"model": d.cfg.LLM.Model,
		"messages": []map[string]string{
			{"role": "system", "content": llm.SystemPrompt(d.cfg)},
			{"role": "user", "content": prompt},
		},
		"temperature": d.cfg.LLM.Temperature,
		"max_tokens":  maxTokens,
	}

	req := api.NewRequest(http.MethodPost, completionsPath).
		WithContext(ctx).
		WithBody(body)
	resp, err := d.client.DoWithRetry(req, nil)
	if err != nil {
		return "", err
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
