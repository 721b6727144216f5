package engine

import (
	"context"
	"errors"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/types"
)

// closePosition runs the full close operation for one symbol. The closing
// marker is held for the whole operation. On a gateway timeout the position
// is retained so the next exit-check or reconciliation pass retries; only a
// "nothing left to close" rejection evicts it without a fill.
func (e *Engine) closePosition(ctx context.Context, symbol string, exitPrice float64, reason types.ExitReason) error {
	if !e.guard.tryBeginClose(symbol) {
		metrics.ConcurrencyRejections.WithLabelValues("close").Inc()
		return ErrConcurrencyRejected
	}
	defer e.guard.endClose(symbol)

	pos, ok := e.ledger.get(symbol)
	if !ok {
		return nil
	}

	qty := pos.Quantity
	if prec, err := e.gw.GetSymbolPrecision(ctx, symbol); err == nil {
		// Same rounding rule as at open time, so the close can never exceed
		// the opened quantity and never leaves an unclosable remainder.
		qty = prec.SnapQuantity(qty)
	}
	if qty <= 0 {
		logger.Error(ctx, "Close quantity rounds to zero, evicting",
			"symbol", symbol, "quantity", pos.Quantity)
		e.finalizeClose(ctx, pos, exitPrice, reason)
		return nil
	}

	result, err := e.gw.CreateMarketOrder(ctx, types.OrderRequest{
		Symbol:     symbol,
		Side:       types.ExitOrderSide(pos.Side),
		Quantity:   qty,
		ReduceOnly: true,
	})
	switch {
	case err == nil:
		metrics.OrdersTotal.WithLabelValues(e.cfg.Mode, string(types.ExitOrderSide(pos.Side))).Inc()
		if p := result.EntryPrice(); p > 0 {
			exitPrice = p
		}
		logger.Trade(ctx, symbol, string(types.ExitOrderSide(pos.Side)), qty, exitPrice, result.OrderID,
			"reason", reason)
	case errors.Is(err, interfaces.ErrPositionMissing):
		// Already closed or liquidated on the exchange. Evict anyway so the
		// close is not retried forever; accounting uses the best-available
		// price.
		logger.Warn(ctx, "Position already gone on exchange, evicting",
			"symbol", symbol, "reason", reason, "error", err)
		reason = types.ExitExternal
	default:
		metrics.GatewayErrors.WithLabelValues("order").Inc()
		logger.ErrorWithErr(ctx, "Close order failed, position retained", err,
			"symbol", symbol, "reason", reason)
		e.notifyError(ctx, err)
		return err
	}

	e.finalizeClose(ctx, pos, exitPrice, reason)
	return nil
}

// finalizeClose runs the accounting path shared by engine-initiated and
// externally detected closes: build the record, evict the position, update
// the day's counters, persist and fan out. Callers hold the closing marker.
func (e *Engine) finalizeClose(ctx context.Context, pos types.Position, exitPrice float64, reason types.ExitReason) {
	if exitPrice <= 0 {
		exitPrice = pos.EntryPrice
	}
	trade := buildClosedTrade(pos, exitPrice, reason, e.cfg.Fees.RatePerSide, time.Now())

	e.ledger.remove(pos.Symbol)

	e.stateMu.Lock()
	e.state.TodayPnl += trade.NetPnlUsd
	todayPnl := e.state.TodayPnl
	e.stateMu.Unlock()

	e.recordHistory(trade)

	metrics.OpenPositions.Set(float64(e.ledger.count()))
	metrics.TodayPnl.Set(todayPnl)
	metrics.ExitsTotal.WithLabelValues(string(reason), string(pos.Side)).Inc()

	logger.Info(ctx, "Position closed",
		"symbol", pos.Symbol,
		"side", pos.Side,
		"reason", reason,
		"entry_price", pos.EntryPrice,
		"exit_price", exitPrice,
		"gross_pnl_usd", trade.GrossPnlUsd,
		"commission_usd", trade.CommissionUsd,
		"net_pnl_usd", trade.NetPnlUsd,
		"today_pnl", todayPnl,
	)

	if err := e.tstore.AppendTrade(ctx, trade); err != nil {
		logger.ErrorWithErr(ctx, "Failed to append closed trade", err, "symbol", pos.Symbol)
		e.notifyError(ctx, err)
	}
	e.persistDailyState(ctx)

	bg := context.WithoutCancel(ctx)
	go e.notifier.TradeClosed(bg, trade)
	go func() {
		// Fire-and-observe feedback to the decision provider.
		if err := e.decider.OnTradeClosed(bg, trade); err != nil {
			logger.Warn(bg, "Trade feedback dropped", "symbol", trade.Symbol, "error", err)
		}
	}()

	e.refreshBalance(ctx)
}

// recordHistory keeps the recent closed trades handed to the decision
// provider as context.
func (e *Engine) recordHistory(trade types.ClosedTrade) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = append(e.history, trade)
	if max := e.cfg.LLM.HistoryTrades; max > 0 && len(e.history) > max {
		e.history = e.history[len(e.history)-max:]
	}
}

func (e *Engine) recentHistory() []types.ClosedTrade {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]types.ClosedTrade, len(e.history))
	copy(out, e.history)
	return out
}
