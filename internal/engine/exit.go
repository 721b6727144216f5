package engine

import (
	"context"
	"errors"
	"time"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/types"
)

// handlePrice runs the exit rules for one symbol against a fresh price. It is
// invoked on every stream tick and, as a fallback, on each periodic exit
// poll.
func (e *Engine) handlePrice(ctx context.Context, symbol string, price float64, now time.Time) {
	pos, ok := e.ledger.get(symbol)
	if !ok {
		return
	}

	if pos.Corrupted() {
		e.evictCorrupted(ctx, pos)
		return
	}

	e.maybeTrail(ctx, pos, price)

	// Re-read: the trailing rule may have tightened the stop.
	pos, ok = e.ledger.get(symbol)
	if !ok {
		return
	}

	reason, triggered := evaluateExit(pos, price, now, e.cfg.MaxHoldDuration())
	if !triggered {
		return
	}
	if e.guard.isClosing(symbol) {
		return
	}

	logger.Risk(ctx, symbol, "EXIT_TRIGGERED",
		"reason", reason,
		"price", price,
		"stop_loss", pos.StopLoss,
		"take_profit", pos.TakeProfit,
	)
	go func() {
		if err := e.closePosition(ctx, symbol, price, reason); err != nil && !errors.Is(err, ErrConcurrencyRejected) {
			logger.ErrorWithErr(ctx, "Exit close failed", err, "symbol", symbol, "reason", reason)
		}
	}()
}

// evaluateExit applies the SL/TP/timeout rules. A zero stop-loss or
// take-profit means "not yet armed" and suppresses that check; the timeout
// check always runs.
func evaluateExit(pos types.Position, price float64, now time.Time, maxHold time.Duration) (types.ExitReason, bool) {
	switch pos.Side {
	case types.SideLong:
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return types.ExitStopLoss, true
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return types.ExitTakeProfit, true
		}
	case types.SideShort:
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			return types.ExitStopLoss, true
		}
		if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			return types.ExitTakeProfit, true
		}
	}

	if maxHold > 0 && now.Sub(pos.EntryTime) > maxHold {
		return types.ExitTimeout, true
	}
	return "", false
}

// maybeTrail tightens the stop-loss toward the current price once unrealized
// leveraged P&L clears the activation threshold. The stop only ever moves in
// the protective direction; the mutation itself never triggers a close.
func (e *Engine) maybeTrail(ctx context.Context, pos types.Position, price float64) {
	if e.cfg.Trailing.ActivatePnlPercent <= 0 {
		return
	}
	if pos.LeveragedPnlPercent(price) < e.cfg.Trailing.ActivatePnlPercent {
		return
	}
	if e.guard.isClosing(pos.Symbol) {
		return
	}

	trail := price * e.cfg.Trailing.TrailPercent / 100
	var candidate float64
	switch pos.Side {
	case types.SideLong:
		candidate = price - trail
		if candidate <= pos.StopLoss {
			return
		}
	case types.SideShort:
		candidate = price + trail
		if pos.StopLoss > 0 && candidate >= pos.StopLoss {
			return
		}
	default:
		return
	}

	if prec, err := e.gw.GetSymbolPrecision(ctx, pos.Symbol); err == nil {
		candidate = prec.SnapPrice(candidate)
	}

	old := pos.StopLoss
	if e.ledger.update(pos.Symbol, func(p *types.Position) { p.StopLoss = candidate }) {
		logger.Info(ctx, "Trailing stop tightened",
			"symbol", pos.Symbol,
			"side", pos.Side,
			"old_stop", old,
			"new_stop", candidate,
			"price", price,
		)
	}
}

// evictCorrupted removes a position whose entry price or quantity no exit or
// P&L math should ever run on. The eviction goes through the close guard so
// it cannot race an in-flight close.
func (e *Engine) evictCorrupted(ctx context.Context, pos types.Position) {
	if !e.guard.tryBeginClose(pos.Symbol) {
		return
	}
	defer e.guard.endClose(pos.Symbol)

	logger.Error(ctx, "Evicting corrupted position",
		"symbol", pos.Symbol,
		"entry_price", pos.EntryPrice,
		"quantity", pos.Quantity,
	)
	e.ledger.remove(pos.Symbol)
	metrics.OpenPositions.Set(float64(e.ledger.count()))
}
