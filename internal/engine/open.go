package engine

import (
	"context"
	"math"
	"time"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/types"
)

// openPosition runs the full open operation for one symbol. The opening
// marker is held for the whole operation and released on every exit path.
// A guard rejection is a no-op, not a fault.
func (e *Engine) openPosition(ctx context.Context, symbol string, rec types.Recommendation, marketPrice float64) error {
	if !e.guard.tryBeginOpen(symbol) {
		metrics.ConcurrencyRejections.WithLabelValues("open").Inc()
		return ErrConcurrencyRejected
	}
	defer e.guard.endOpen(symbol)

	if e.ledger.has(symbol) {
		return ErrConcurrencyRejected
	}

	side := types.Side(rec.Action)
	if err := validateOpen(side, rec, marketPrice, e.cfg.Limits.MaxLeveragePerTrade, e.cfg.Limits.MaxPositionSizePercent); err != nil {
		logger.Warn(ctx, "Open rejected", "symbol", symbol, "error", err)
		return err
	}

	state := e.botState()
	capital := state.AvailableBalance * rec.SizePercent / 100
	if capital <= 0 {
		return validationErr("capital", "no available balance (available=%.2f)", state.AvailableBalance)
	}

	// The margin this position locks equals the capital committed: the
	// notional is capital*leverage and margin is notional/leverage.
	if !e.admitExposure(ctx, capital, state.Balance) {
		metrics.ExposureRejections.Inc()
		return ErrExposureRejected
	}

	prec, err := e.gw.GetSymbolPrecision(ctx, symbol)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("precision").Inc()
		return err
	}

	qty := prec.SnapQuantity(capital * float64(rec.Leverage) / marketPrice)
	if qty <= 0 || qty < prec.MinQuantity {
		return validationErr("quantity", "below exchange minimum (qty=%.8f min=%.8f)", qty, prec.MinQuantity)
	}
	if prec.MinNotional > 0 && qty*marketPrice < prec.MinNotional {
		return validationErr("quantity", "below minimum notional (notional=%.2f min=%.2f)", qty*marketPrice, prec.MinNotional)
	}

	if err := e.gw.SetMarginMode(ctx, symbol, e.cfg.Gateway.MarginMode); err != nil {
		logger.Warn(ctx, "Margin mode not applied", "symbol", symbol, "error", err)
	}
	if err := e.gw.SetLeverage(ctx, symbol, rec.Leverage); err != nil {
		metrics.GatewayErrors.WithLabelValues("leverage").Inc()
		return err
	}

	result, err := e.gw.CreateMarketOrder(ctx, types.OrderRequest{
		Symbol:   symbol,
		Side:     types.EntryOrderSide(side),
		Quantity: qty,
	})
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("order").Inc()
		e.notifyError(ctx, err)
		return err
	}
	metrics.OrdersTotal.WithLabelValues(e.cfg.Mode, string(types.EntryOrderSide(side))).Inc()

	entry := result.EntryPrice()
	if entry <= 0 {
		entry = marketPrice
	}
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		// A zero or non-finite entry price must never be stored; it makes
		// every downstream P&L figure unbounded. The position, if any, is
		// picked up by reconciliation adoption.
		err := validationErr("entry_price", "derived entry price %.8f is not positive finite, position not stored", entry)
		logger.ErrorWithErr(ctx, "Fatal open failure", err, "symbol", symbol, "order_id", result.OrderID)
		e.notifyError(ctx, err)
		return err
	}

	now := time.Now()
	stopLoss, takeProfit := resolveStops(ctx, rec, side, entry, prec)

	pos := types.Position{
		Symbol:             symbol,
		Side:               side,
		EntryPrice:         entry,
		Quantity:           qty,
		Leverage:           rec.Leverage,
		StopLoss:           stopLoss,
		TakeProfit:         takeProfit,
		EntryTime:          now,
		LastDecisionUpdate: now,
		SizePercent:        rec.SizePercent,
		Confidence:         rec.Confidence,
		Rationale:          rec.Rationale,
	}
	e.ledger.set(pos)

	e.stateMu.Lock()
	e.state.TodayTrades++
	e.stateMu.Unlock()
	e.persistDailyState(ctx)

	metrics.OpenPositions.Set(float64(e.ledger.count()))
	logger.Trade(ctx, symbol, string(types.EntryOrderSide(side)), qty, entry, result.OrderID,
		"leverage", rec.Leverage,
		"stop_loss", stopLoss,
		"take_profit", takeProfit,
	)

	go e.notifier.PositionOpened(context.WithoutCancel(ctx), pos)
	e.refreshBalance(ctx)
	return nil
}

// validateOpen rejects bad, NaN or out-of-range recommendation inputs before
// any of them reach sizing arithmetic or order submission.
func validateOpen(side types.Side, rec types.Recommendation, marketPrice float64, maxLeverage int, maxSizePercent float64) error {
	if !side.Valid() {
		return validationErr("action", "not a tradable direction: %q", rec.Action)
	}
	if marketPrice <= 0 || math.IsNaN(marketPrice) || math.IsInf(marketPrice, 0) {
		return validationErr("market_price", "not positive finite: %v", marketPrice)
	}
	if rec.Leverage < 1 || rec.Leverage > maxLeverage {
		return validationErr("leverage", "%d outside [1, %d]", rec.Leverage, maxLeverage)
	}
	if rec.SizePercent <= 0 || rec.SizePercent > maxSizePercent || math.IsNaN(rec.SizePercent) {
		return validationErr("size_percent", "%v outside (0, %.2f]", rec.SizePercent, maxSizePercent)
	}
	for name, v := range map[string]float64{
		"stop_loss":           rec.StopLoss,
		"take_profit":         rec.TakeProfit,
		"stop_loss_percent":   rec.StopLossPercent,
		"take_profit_percent": rec.TakeProfitPercent,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return validationErr(name, "not a non-negative finite number: %v", v)
		}
	}
	return nil
}

// resolveStops derives SL/TP from the recommendation: absolute prices win,
// the percent fields relative to the realized entry are the fallback. A stop
// on the wrong side of entry for the direction is dropped to zero, which
// suppresses that check until the next decision cycle.
func resolveStops(ctx context.Context, rec types.Recommendation, side types.Side, entry float64, prec types.SymbolPrecision) (stopLoss, takeProfit float64) {
	stopLoss = candidateStop(rec.StopLoss, rec.StopLossPercent, side, entry, -1)
	takeProfit = candidateStop(rec.TakeProfit, rec.TakeProfitPercent, side, entry, +1)

	stopLoss = prec.SnapPrice(stopLoss)
	takeProfit = prec.SnapPrice(takeProfit)

	if !stopConsistent(side, entry, stopLoss, takeProfit) {
		logger.Warn(ctx, "Dropping direction-inconsistent stops",
			"side", side, "entry", entry, "stop_loss", stopLoss, "take_profit", takeProfit)
		if stopLoss > 0 && !stopLossConsistent(side, entry, stopLoss) {
			stopLoss = 0
		}
		if takeProfit > 0 && !takeProfitConsistent(side, entry, takeProfit) {
			takeProfit = 0
		}
	}
	return stopLoss, takeProfit
}

func stopLossConsistent(side types.Side, entry, stopLoss float64) bool {
	if side == types.SideLong {
		return stopLoss < entry
	}
	return stopLoss > entry
}

func takeProfitConsistent(side types.Side, entry, takeProfit float64) bool {
	if side == types.SideLong {
		return takeProfit > entry
	}
	return takeProfit < entry
}

// stopConsistent reports whether every armed stop sits on the correct side of
// entry for the direction.
func stopConsistent(side types.Side, entry, stopLoss, takeProfit float64) bool {
	if stopLoss > 0 && !stopLossConsistent(side, entry, stopLoss) {
		return false
	}
	if takeProfit > 0 && !takeProfitConsistent(side, entry, takeProfit) {
		return false
	}
	return true
}
