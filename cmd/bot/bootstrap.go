package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"scalp-trading-bot/internal/engine"
	"scalp-trading-bot/internal/engine/engineobs"
	"scalp-trading-bot/internal/gateway/binance"
	"scalp-trading-bot/internal/gateway/gatewayobs"
	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/llm/claude"
	"scalp-trading-bot/internal/llm/llmobs"
	"scalp-trading-bot/internal/llm/noop"
	"scalp-trading-bot/internal/llm/openai"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/tradelog"
)

// initializeSystem loads the environment and initializes logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// initializeGateway builds the exchange gateway with observability.
func initializeGateway(ctx context.Context, cfg *store.Config, secrets *store.Secrets) interfaces.Gateway {
	gw := binance.New(binance.Params{
		Mode:            cfg.Mode,
		APIKey:          secrets.BinanceAPIKey,
		SecretKey:       secrets.BinanceSecretKey,
		BaseURL:         cfg.Gateway.BaseURL,
		WsURL:           cfg.Gateway.WsURL,
		RecvWindowMs:    cfg.Gateway.RecvWindowMs,
		Timeout:         time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
		OrdersPerWindow: cfg.Gateway.OrdersPerWindow,
		WindowSeconds:   cfg.Gateway.WindowSeconds,
		QuoteAsset:      cfg.QuoteAsset,
	})

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	return gatewayobs.Wrap(gw)
}

// initializeDecider builds the decision provider with observability.
func initializeDecider(ctx context.Context, cfg *store.Config) interfaces.Decider {
	var decider interfaces.Decider

	switch cfg.LLM.Provider {
	case "OPENAI":
		decider = openai.New(cfg)
	case "CLAUDE":
		decider = claude.New(cfg)
	default:
		decider = noop.New()
		logger.Warn(ctx, "No LLM provider configured - using Noop decider (always HOLD)")
	}

	return llmobs.Wrap(decider)
}

// initializeStore builds the trade store and runs log retention.
func initializeStore(ctx context.Context, cfg *store.Config) *tradelog.Store {
	ts := tradelog.New(cfg.Store.Dir, cfg.Location())

	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := ts.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old trade logs", "error", err)
		}
	}
	return ts
}

// initializeEngine builds the trading engine with observability.
func initializeEngine(cfg *store.Config, gw interfaces.Gateway, decider interfaces.Decider, ts interfaces.TradeStore, notifier interfaces.Notifier) interfaces.Engine {
	eng := engine.New(cfg, gw, decider, ts, notifier)
	return engineobs.Wrap(eng)
}
