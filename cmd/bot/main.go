package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/notify"
	"scalp-trading-bot/internal/server"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := initializeSystem(); err != nil {
		return err
	}
	defer trace.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return err
	}
	secrets, err := store.LoadSecrets()
	if err != nil {
		return err
	}
	if cfg.Mode == "LIVE" && (secrets.BinanceAPIKey == "" || secrets.BinanceSecretKey == "") {
		return errors.New("LIVE mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}

	gw := initializeGateway(ctx, cfg, secrets)
	decider := initializeDecider(ctx, cfg)
	ts := initializeStore(ctx, cfg)
	notifier := notify.New(secrets.DiscordWebhook)
	eng := initializeEngine(cfg, gw, decider, ts, notifier)

	srv := server.New(cfg.Server.Addr, eng)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(ctx)
	}()

	logger.Info(ctx, "Bot starting", "mode", cfg.Mode, "symbols", cfg.Symbols)

	runErr := eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Server shutdown failed", "error", err)
	}
	if err := <-srvErr; err != nil {
		logger.ErrorWithErr(ctx, "Control server failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info(context.Background(), "Bot stopped")
	return nil
}
