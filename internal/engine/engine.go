// Package engine implements the position-lifecycle and risk-control core:
// the per-symbol concurrency guard, the position ledger, the exposure cap,
// the exit evaluator and the reconciliation loop, driven by the price stream
// and a set of independent timers.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/types"
)

// persistFailureAlertThreshold is the number of consecutive daily-state save
// failures after which the operator is alerted, and re-alerted every further
// multiple while the outage lasts. In-memory state stays authoritative
// meanwhile.
const persistFailureAlertThreshold = 5

type Engine struct {
	cfg      *store.Config
	gw       interfaces.Gateway
	decider  interfaces.Decider
	tstore   interfaces.TradeStore
	notifier interfaces.Notifier

	guard  *inFlightGuard
	ledger *ledger

	stateMu sync.RWMutex
	state   types.BotState

	histMu  sync.Mutex
	history []types.ClosedTrade

	symMu   sync.RWMutex
	symbols map[string]struct{}

	persistFailures atomic.Int64
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg *store.Config, gw interfaces.Gateway, decider interfaces.Decider, tstore interfaces.TradeStore, notifier interfaces.Notifier) *Engine {
	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		decider:  decider,
		tstore:   tstore,
		notifier: notifier,
		guard:    newInFlightGuard(),
		ledger:   newLedger(),
		symbols:  symbols,
	}
}

// Run drives the engine until the context ends. Each periodic task isolates
// its own failures so one symbol's fault never stops the others.
func (e *Engine) Run(ctx context.Context) error {
	e.loadDailyState(ctx)

	if err := e.gw.SyncTime(ctx); err != nil {
		logger.Warn(ctx, "Initial time sync failed", "error", err)
	}
	e.refreshBalance(ctx)

	// Adopt whatever the exchange already holds before trading starts.
	e.reconcile(ctx)

	if err := e.gw.Start(ctx, e.listSymbols()); err != nil {
		return err
	}
	defer e.gw.Stop(context.WithoutCancel(ctx))

	decisionTicker := time.NewTicker(time.Duration(e.cfg.Intervals.DecisionSeconds) * time.Second)
	reconcileTicker := time.NewTicker(time.Duration(e.cfg.Intervals.ReconcileSeconds) * time.Second)
	balanceTicker := time.NewTicker(time.Duration(e.cfg.Intervals.BalanceRefreshSeconds) * time.Second)
	exitPollTicker := time.NewTicker(time.Duration(e.cfg.Intervals.ExitPollSeconds) * time.Second)
	timeSyncTicker := time.NewTicker(time.Duration(e.cfg.Gateway.TimeSyncMinutes) * time.Minute)
	dailyTicker := time.NewTicker(time.Minute)
	defer decisionTicker.Stop()
	defer reconcileTicker.Stop()
	defer balanceTicker.Stop()
	defer exitPollTicker.Stop()
	defer timeSyncTicker.Stop()
	defer dailyTicker.Stop()

	logger.Info(ctx, "Engine running",
		"mode", e.cfg.Mode,
		"symbols", e.listSymbols(),
		"decision_interval_s", e.cfg.Intervals.DecisionSeconds,
	)
	e.notifier.Info(ctx, "Engine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Engine stopping")
			return ctx.Err()

		case tick, ok := <-e.gw.Ticks():
			if !ok {
				return nil
			}
			e.handlePrice(ctx, tick.Symbol, tick.Price, time.Now())

		case <-decisionTicker.C:
			for _, symbol := range e.listSymbols() {
				go e.decideSymbol(ctx, symbol)
			}

		case <-exitPollTicker.C:
			e.pollExits(ctx)

		case <-reconcileTicker.C:
			e.reconcile(ctx)

		case <-balanceTicker.C:
			e.refreshBalance(ctx)

		case <-timeSyncTicker.C:
			if err := e.gw.SyncTime(ctx); err != nil {
				logger.Warn(ctx, "Time sync failed", "error", err)
			}

		case <-dailyTicker.C:
			e.maybeResetDay(ctx)
		}
	}
}

// pollExits is the fallback exit path for symbols whose stream went quiet.
func (e *Engine) pollExits(ctx context.Context) {
	now := time.Now()
	for _, pos := range e.ledger.list() {
		price, err := e.gw.GetPrice(ctx, pos.Symbol)
		if err != nil {
			logger.Warn(ctx, "Exit poll price fetch failed", "symbol", pos.Symbol, "error", err)
			continue
		}
		e.handlePrice(ctx, pos.Symbol, price, now)
	}
}

// Snapshot returns the current engine state for the control surface.
func (e *Engine) Snapshot(ctx context.Context) types.Snapshot {
	e.stateMu.RLock()
	state := e.state
	e.stateMu.RUnlock()

	return types.Snapshot{
		Positions: e.ledger.list(),
		State:     state,
		Exposure:  e.currentExposure(ctx, state.Balance),
		Symbols:   e.listSymbols(),
	}
}

// CloseSymbol closes an open position on operator request.
func (e *Engine) CloseSymbol(ctx context.Context, symbol string, reason types.ExitReason) error {
	if !e.ledger.has(symbol) {
		return validationErr("symbol", "no open position for %s", symbol)
	}
	price, err := e.gw.GetPrice(ctx, symbol)
	if err != nil {
		price = 0 // finalizeClose falls back to the entry price
	}
	return e.closePosition(ctx, symbol, price, reason)
}

// AddSymbol starts trading a symbol.
func (e *Engine) AddSymbol(ctx context.Context, symbol string) error {
	if symbol == "" {
		return validationErr("symbol", "empty")
	}
	e.symMu.Lock()
	_, exists := e.symbols[symbol]
	e.symbols[symbol] = struct{}{}
	e.symMu.Unlock()
	if exists {
		return nil
	}
	logger.Info(ctx, "Symbol added", "symbol", symbol)
	return e.gw.Subscribe(ctx, symbol)
}

// RemoveSymbol stops trading a symbol. An open position stays managed: exit
// rules keep running off the poll path until it closes.
func (e *Engine) RemoveSymbol(ctx context.Context, symbol string) error {
	e.symMu.Lock()
	_, exists := e.symbols[symbol]
	delete(e.symbols, symbol)
	e.symMu.Unlock()
	if !exists {
		return validationErr("symbol", "not traded: %s", symbol)
	}
	logger.Info(ctx, "Symbol removed", "symbol", symbol)
	if e.ledger.has(symbol) {
		// Keep the stream alive while the position is open.
		return nil
	}
	return e.gw.Unsubscribe(ctx, symbol)
}

func (e *Engine) listSymbols() []string {
	e.symMu.RLock()
	defer e.symMu.RUnlock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	return out
}

func (e *Engine) tradesSymbol(symbol string) bool {
	e.symMu.RLock()
	defer e.symMu.RUnlock()
	_, ok := e.symbols[symbol]
	return ok
}

func (e *Engine) botState() types.BotState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// refreshBalance pulls the account balance and updates the gauges.
func (e *Engine) refreshBalance(ctx context.Context) {
	bal, err := e.gw.GetBalance(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("balance").Inc()
		logger.Warn(ctx, "Balance refresh failed", "error", err)
		return
	}

	e.stateMu.Lock()
	e.state.Balance = bal.Total
	e.state.AvailableBalance = bal.Available
	e.state.UpdatedAt = time.Now()
	e.stateMu.Unlock()

	metrics.Balance.Set(bal.Total)
	metrics.MarginUsed.Set(e.currentExposure(ctx, bal.Total).MarginUsed)
}

// loadDailyState seeds the day's counters from the store so a restart does
// not double-count or lose the day's figures.
func (e *Engine) loadDailyState(ctx context.Context) {
	today := time.Now().In(e.cfg.Location()).Format(time.DateOnly)

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.LastResetDay = today

	ds, err := e.tstore.LoadDailyState(ctx)
	if err != nil {
		logger.Warn(ctx, "No daily state loaded, starting fresh", "error", err)
		return
	}
	if ds.Day != today {
		return
	}
	e.state.TodayPnl = ds.Pnl
	e.state.TodayTrades = ds.Trades
	metrics.TodayPnl.Set(ds.Pnl)
	logger.Info(ctx, "Daily state restored", "day", ds.Day, "pnl", ds.Pnl, "trades", ds.Trades)
}

// persistDailyState saves the day's counters. Failures keep in-memory state
// authoritative but escalate after enough consecutive misses.
func (e *Engine) persistDailyState(ctx context.Context) {
	e.stateMu.RLock()
	ds := types.DailyState{
		Day:    e.state.LastResetDay,
		Pnl:    e.state.TodayPnl,
		Trades: e.state.TodayTrades,
	}
	e.stateMu.RUnlock()

	if err := e.tstore.SaveDailyState(ctx, ds); err != nil {
		n := e.persistFailures.Add(1)
		logger.ErrorWithErr(ctx, "Failed to persist daily state", err, "consecutive", n)
		if n%persistFailureAlertThreshold == 0 {
			e.notifyError(ctx, err)
		}
		return
	}
	e.persistFailures.Store(0)
}

// maybeResetDay zeroes the day counters at the calendar-day boundary in the
// configured reference timezone.
func (e *Engine) maybeResetDay(ctx context.Context) {
	today := time.Now().In(e.cfg.Location()).Format(time.DateOnly)

	e.stateMu.Lock()
	if e.state.LastResetDay == today {
		e.stateMu.Unlock()
		return
	}
	prevPnl, prevTrades := e.state.TodayPnl, e.state.TodayTrades
	e.state.TodayPnl = 0
	e.state.TodayTrades = 0
	e.state.LastResetDay = today
	e.stateMu.Unlock()

	metrics.TodayPnl.Set(0)
	logger.Info(ctx, "Daily counters reset",
		"day", today, "previous_pnl", prevPnl, "previous_trades", prevTrades)
	e.persistDailyState(ctx)
}

func (e *Engine) notifyError(ctx context.Context, err error) {
	go e.notifier.Error(context.WithoutCancel(ctx), err)
}
