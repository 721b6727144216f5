package llmobs

import (
	"context"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

// observableDecider wraps a Decider with observability (logging & tracing)
type observableDecider struct {
	decider interfaces.Decider
}

// Compile-time interface check
var _ interfaces.Decider = (*observableDecider)(nil)

// Wrap wraps a decider with observability middleware
func Wrap(decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{
		decider: decider,
	}
}

func (od *observableDecider) Screen(ctx context.Context, symbol string, price float64) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "decider.Screen")
	defer span.End()

	ok, err := od.decider.Screen(ctx, symbol, price)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Pre-screen failed", err, "symbol", symbol)
		return false, err
	}
	logger.DebugSkip(ctx, 1, "Pre-screen result", "symbol", symbol, "trade", ok)
	return ok, nil
}

func (od *observableDecider) Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "decider.Recommend")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Requesting recommendation",
		"symbol", snap.Symbol,
		"price", snap.Price,
		"history_trades", len(history),
	)

	rec, err := od.decider.Recommend(ctx, snap, history)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get recommendation", err,
			"symbol", snap.Symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return types.Recommendation{}, err
	}

	logger.InfoSkip(ctx, 1, "Recommendation received",
		"symbol", snap.Symbol,
		"action", rec.Action,
		"confidence", rec.Confidence,
		"size_percent", rec.SizePercent,
		"leverage", rec.Leverage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func (od *observableDecider) OnTradeClosed(ctx context.Context, trade types.ClosedTrade) error {
	ctx, span := trace.StartSpan(ctx, "decider.OnTradeClosed")
	defer span.End()

	if err := od.decider.OnTradeClosed(ctx, trade); err != nil {
		logger.WarnSkip(ctx, 1, "Trade feedback failed", "symbol", trade.Symbol, "error", err)
		return err
	}
	return nil
}
