package engineobs

import (
	"context"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Run(ctx context.Context) error {
	logger.InfoSkip(ctx, 1, "Engine run starting")
	err := oe.engine.Run(ctx)
	if err != nil && ctx.Err() == nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine run failed", err)
	}
	return err
}

func (oe *observableEngine) Snapshot(ctx context.Context) types.Snapshot {
	return oe.engine.Snapshot(ctx)
}

func (oe *observableEngine) CloseSymbol(ctx context.Context, symbol string, reason types.ExitReason) error {
	ctx, span := trace.StartSpan(ctx, "engine.CloseSymbol")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Manual close requested", "symbol", symbol, "reason", reason)

	err := oe.engine.CloseSymbol(ctx, symbol, reason)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Manual close failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Manual close completed",
		"symbol", symbol,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (oe *observableEngine) AddSymbol(ctx context.Context, symbol string) error {
	ctx, span := trace.StartSpan(ctx, "engine.AddSymbol")
	defer span.End()

	if err := oe.engine.AddSymbol(ctx, symbol); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Add symbol failed", err, "symbol", symbol)
		return err
	}
	return nil
}

func (oe *observableEngine) RemoveSymbol(ctx context.Context, symbol string) error {
	ctx, span := trace.StartSpan(ctx, "engine.RemoveSymbol")
	defer span.End()

	if err := oe.engine.RemoveSymbol(ctx, symbol); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Remove symbol failed", err, "symbol", symbol)
		return err
	}
	return nil
}
