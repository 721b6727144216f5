package engine

import (
	"context"
	"time"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/types"
)

// reconcile diffs the ledger against the exchange's authoritative open
// positions. A ledger entry missing from the exchange is only declared
// externally closed when neither in-flight marker is held: a held "closing"
// marker means the local close is already running, a held "opening" marker
// means the fill may simply not be visible yet.
func (e *Engine) reconcile(ctx context.Context) {
	exchange, err := e.gw.GetOpenPositions(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("positions").Inc()
		logger.ErrorWithErr(ctx, "Reconciliation fetch failed", err)
		return
	}

	onExchange := make(map[string]types.ExchangePosition, len(exchange))
	for _, p := range exchange {
		onExchange[p.Symbol] = p
	}

	for _, pos := range e.ledger.list() {
		if _, ok := onExchange[pos.Symbol]; ok {
			continue
		}
		if e.guard.isClosing(pos.Symbol) || e.guard.isOpening(pos.Symbol) {
			logger.Debug(ctx, "Reconciliation skip, operation in flight", "symbol", pos.Symbol)
			continue
		}
		e.closeExternal(ctx, pos.Symbol)
	}

	for _, p := range exchange {
		if e.ledger.has(p.Symbol) || e.guard.isOpening(p.Symbol) || e.guard.isClosing(p.Symbol) {
			continue
		}
		e.adopt(ctx, p)
	}
}

// closeExternal runs the accounting path for a position the exchange no
// longer reports (liquidation or a manual exchange-side close). No order is
// submitted; the best-available current price stands in for the exit price.
func (e *Engine) closeExternal(ctx context.Context, symbol string) {
	if !e.guard.tryBeginClose(symbol) {
		return
	}
	defer e.guard.endClose(symbol)

	pos, ok := e.ledger.get(symbol)
	if !ok {
		return
	}

	exitPrice, err := e.gw.GetPrice(ctx, symbol)
	if err != nil || exitPrice <= 0 {
		exitPrice = pos.EntryPrice
	}

	logger.Warn(ctx, "Position closed externally",
		"symbol", symbol, "entry_price", pos.EntryPrice, "exit_price", exitPrice)
	e.finalizeClose(ctx, pos, exitPrice, types.ExitExternal)
}

// adopt takes over an exchange position the ledger does not know about, at
// startup or after a fatal open failure. SL/TP start at zero (suppressed)
// until the next decision cycle arms them; the timeout clock starts now.
func (e *Engine) adopt(ctx context.Context, p types.ExchangePosition) {
	if !e.guard.tryBeginOpen(p.Symbol) {
		return
	}
	defer e.guard.endOpen(p.Symbol)

	if e.ledger.has(p.Symbol) {
		return
	}
	if p.EntryPrice <= 0 || p.Quantity <= 0 {
		logger.Warn(ctx, "Skipping unadoptable exchange position",
			"symbol", p.Symbol, "entry_price", p.EntryPrice, "quantity", p.Quantity)
		return
	}

	leverage := p.Leverage
	if leverage < 1 {
		leverage = 1
	}
	now := time.Now()
	e.ledger.set(types.Position{
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		Leverage:   leverage,
		EntryTime:  now,
		Rationale:  "adopted from exchange",
	})
	metrics.OpenPositions.Set(float64(e.ledger.count()))

	logger.Warn(ctx, "Adopted untracked exchange position",
		"symbol", p.Symbol,
		"side", p.Side,
		"quantity", p.Quantity,
		"entry_price", p.EntryPrice,
		"leverage", leverage,
	)
}
