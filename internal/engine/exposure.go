package engine

import (
	"context"
	"math"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/types"
)

// currentExposure sums margin across open positions. Positions with a
// non-positive or non-finite leverage are excluded from the sum with a
// warning instead of feeding the division.
func (e *Engine) currentExposure(ctx context.Context, balance float64) types.Exposure {
	var margin float64
	for _, pos := range e.ledger.list() {
		lev := float64(pos.Leverage)
		if lev <= 0 || math.IsNaN(lev) || math.IsInf(lev, 0) {
			logger.Warn(ctx, "Position excluded from exposure sum",
				"symbol", pos.Symbol, "leverage", pos.Leverage)
			continue
		}
		margin += pos.Quantity * pos.EntryPrice / lev
	}

	exp := types.Exposure{MarginUsed: margin}
	if balance > 0 {
		exp.PercentOfBalance = margin / balance * 100
	}
	return exp
}

// admitExposure is the admission check run before every open. A balance at or
// below zero denies the open: the cap fails closed.
func (e *Engine) admitExposure(ctx context.Context, requiredMargin, balance float64) bool {
	if balance <= 0 {
		logger.Risk(ctx, "", "EXPOSURE_DENIED", "reason", "non-positive balance", "balance", balance)
		return false
	}

	exp := e.currentExposure(ctx, balance)
	projected := (exp.MarginUsed + requiredMargin) / balance * 100
	if projected > e.cfg.Limits.MaxTotalExposurePercent {
		logger.Risk(ctx, "", "EXPOSURE_DENIED",
			"margin_used", exp.MarginUsed,
			"required_margin", requiredMargin,
			"projected_percent", projected,
			"max_percent", e.cfg.Limits.MaxTotalExposurePercent,
		)
		return false
	}
	return true
}
