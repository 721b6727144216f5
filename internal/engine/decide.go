package engine

import (
	"context"
	"errors"
	"time"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/types"
)

// decideSymbol is one decision cycle for one symbol. With no position open it
// may open one; with a position open it re-requests a recommendation at a
// longer interval and only revises SL/TP.
func (e *Engine) decideSymbol(ctx context.Context, symbol string) {
	if !e.tradesSymbol(symbol) {
		return
	}

	price, err := e.gw.GetPrice(ctx, symbol)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("price").Inc()
		logger.Warn(ctx, "Decision cycle price fetch failed", "symbol", symbol, "error", err)
		return
	}

	if pos, ok := e.ledger.get(symbol); ok {
		recheck := time.Duration(e.cfg.Intervals.OpenPositionRecheckSecs) * time.Second
		if time.Since(pos.LastDecisionUpdate) < recheck {
			return
		}
		e.reviseStops(ctx, pos, price)
		return
	}

	if e.guard.isOpening(symbol) || e.guard.isClosing(symbol) {
		return
	}

	// Cheap pre-screen before the full recommendation call.
	if e.cfg.LLM.Prescreen {
		ok, err := e.decider.Screen(ctx, symbol, price)
		if err != nil {
			logger.Warn(ctx, "Pre-screen failed", "symbol", symbol, "error", err)
			return
		}
		if !ok {
			logger.Debug(ctx, "Pre-screen declined", "symbol", symbol)
			return
		}
	}

	rec, err := e.recommend(ctx, symbol, price)
	if err != nil {
		logger.ErrorWithErr(ctx, "Recommendation failed", err, "symbol", symbol)
		return
	}

	side := types.Side(rec.Action)
	if !side.Valid() {
		return
	}

	err = e.openPosition(ctx, symbol, rec, price)
	switch {
	case err == nil:
	case errors.Is(err, ErrConcurrencyRejected), errors.Is(err, ErrExposureRejected):
		// Already handled and logged inside the open path.
	default:
		var verr *ValidationError
		if errors.As(err, &verr) {
			return // logged at the rejection site
		}
		logger.ErrorWithErr(ctx, "Open failed", err, "symbol", symbol)
	}
}

func (e *Engine) recommend(ctx context.Context, symbol string, price float64) (types.Recommendation, error) {
	state := e.botState()
	snap := types.MarketSnapshot{
		Symbol:           symbol,
		Price:            price,
		Balance:          state.Balance,
		AvailableBalance: state.AvailableBalance,
		OpenPositions:    e.ledger.count(),
		Time:             time.Now(),
	}

	rec, err := e.decider.Recommend(ctx, snap, e.recentHistory())
	if err != nil {
		return types.Recommendation{}, err
	}

	metrics.DecisionsTotal.WithLabelValues(rec.Action).Inc()
	logger.Decision(ctx, symbol, rec.Action, rec.Confidence, rec.Rationale,
		"price", price,
		"size_percent", rec.SizePercent,
		"leverage", rec.Leverage,
	)
	return rec, nil
}

// reviseStops applies a decision-cycle SL/TP update to an open position. An
// update that would put a stop on the wrong side of entry for the position's
// direction is rejected; the previous value stays.
func (e *Engine) reviseStops(ctx context.Context, pos types.Position, price float64) {
	rec, err := e.recommend(ctx, pos.Symbol, price)
	if err != nil {
		logger.Warn(ctx, "Position recheck failed", "symbol", pos.Symbol, "error", err)
		return
	}

	if e.guard.isClosing(pos.Symbol) {
		return
	}

	prec, err := e.gw.GetSymbolPrecision(ctx, pos.Symbol)
	if err != nil {
		prec = types.SymbolPrecision{}
	}

	newStop := candidateStop(rec.StopLoss, rec.StopLossPercent, pos.Side, pos.EntryPrice, -1)
	newTake := candidateStop(rec.TakeProfit, rec.TakeProfitPercent, pos.Side, pos.EntryPrice, +1)

	e.ledger.update(pos.Symbol, func(p *types.Position) {
		p.LastDecisionUpdate = time.Now()
		if newStop > 0 && stopLossConsistent(p.Side, p.EntryPrice, newStop) {
			p.StopLoss = prec.SnapPrice(newStop)
		}
		if newTake > 0 && takeProfitConsistent(p.Side, p.EntryPrice, newTake) {
			p.TakeProfit = prec.SnapPrice(newTake)
		}
	})

	if updated, ok := e.ledger.get(pos.Symbol); ok &&
		(updated.StopLoss != pos.StopLoss || updated.TakeProfit != pos.TakeProfit) {
		logger.Info(ctx, "Stops revised",
			"symbol", pos.Symbol,
			"stop_loss", updated.StopLoss,
			"take_profit", updated.TakeProfit,
		)
	}
}

// candidateStop resolves an absolute-or-percent stop relative to entry.
// dir is -1 for the stop-loss leg and +1 for the take-profit leg.
func candidateStop(absolute, percent float64, side types.Side, entry, dir float64) float64 {
	if absolute > 0 {
		return absolute
	}
	if percent > 0 {
		return entry * (1 + dir*side.Sign()*percent/100)
	}
	return 0
}
