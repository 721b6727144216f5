package engine

import (
	"context"
	"sync"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/types"
)

func init() {
	_ = logger.InitWithConfig(logger.LogConfig{Level: "ERROR", Format: "text"})
}

// fakeGateway is an in-memory Gateway for engine tests.
type fakeGateway struct {
	mu        sync.Mutex
	balance   types.Balance
	prices    map[string]float64
	positions []types.ExchangePosition
	precision types.SymbolPrecision

	orders      []types.OrderRequest
	orderErr    error
	orderResult *types.OrderResult

	ticks chan types.Tick
}

var _ interfaces.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balance: types.Balance{Asset: "USDT", Total: 10000, Available: 10000},
		prices:  map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 2500},
		precision: types.SymbolPrecision{
			QuantityStep: 0.001,
			PriceStep:    0.1,
			MinQuantity:  0.001,
		},
		ticks: make(chan types.Tick, 16),
	}
}

func (g *fakeGateway) GetBalance(ctx context.Context) (types.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *fakeGateway) GetOpenPositions(ctx context.Context) ([]types.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.ExchangePosition(nil), g.positions...), nil
}

func (g *fakeGateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prices[symbol], nil
}

func (g *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (g *fakeGateway) SetMarginMode(ctx context.Context, symbol, mode string) error {
	return nil
}

func (g *fakeGateway) CreateMarketOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.orders = append(g.orders, req)
	if g.orderResult != nil {
		return g.orderResult, nil
	}
	return &types.OrderResult{
		OrderID:  "test-1",
		AvgPrice: g.prices[req.Symbol],
		Fills:    []types.OrderFill{{Price: g.prices[req.Symbol], Quantity: req.Quantity}},
	}, nil
}

func (g *fakeGateway) GetSymbolPrecision(ctx context.Context, symbol string) (types.SymbolPrecision, error) {
	return g.precision, nil
}

func (g *fakeGateway) SyncTime(ctx context.Context) error { return nil }

func (g *fakeGateway) Start(ctx context.Context, symbols []string) error { return nil }

func (g *fakeGateway) Stop(ctx context.Context) {}

func (g *fakeGateway) Subscribe(ctx context.Context, symbol string) error { return nil }

func (g *fakeGateway) Unsubscribe(ctx context.Context, symbol string) error { return nil }

func (g *fakeGateway) Ticks() <-chan types.Tick { return g.ticks }

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

func (g *fakeGateway) lastOrder() types.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orders[len(g.orders)-1]
}

// fakeDecider returns a scripted recommendation.
type fakeDecider struct {
	rec    types.Recommendation
	screen bool
}

var _ interfaces.Decider = (*fakeDecider)(nil)

func (d *fakeDecider) Screen(ctx context.Context, symbol string, price float64) (bool, error) {
	return d.screen, nil
}

func (d *fakeDecider) Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error) {
	return d.rec, nil
}

func (d *fakeDecider) OnTradeClosed(ctx context.Context, trade types.ClosedTrade) error {
	return nil
}

// fakeStore records appended trades in memory.
type fakeStore struct {
	mu      sync.Mutex
	trades  []types.ClosedTrade
	daily   types.DailyState
	saveErr error
}

var _ interfaces.TradeStore = (*fakeStore)(nil)

func (s *fakeStore) AppendTrade(ctx context.Context, trade types.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return nil
}

func (s *fakeStore) LoadDailyState(ctx context.Context) (types.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daily, nil
}

func (s *fakeStore) SaveDailyState(ctx context.Context, ds types.DailyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.daily = ds
	return nil
}

func (s *fakeStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *fakeStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func (s *fakeStore) lastTrade() types.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[len(s.trades)-1]
}

type fakeNotifier struct {
	mu       sync.Mutex
	errCount int
}

var _ interfaces.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) Info(ctx context.Context, msg string) {}

func (n *fakeNotifier) Error(ctx context.Context, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errCount++
}

func (n *fakeNotifier) TradeClosed(ctx context.Context, trade types.ClosedTrade) {}

func (n *fakeNotifier) PositionOpened(ctx context.Context, pos types.Position) {}

func (n *fakeNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errCount
}

func testConfig() *store.Config {
	cfg := &store.Config{
		Mode:               "DRY_RUN",
		Symbols:            []string{"BTCUSDT", "ETHUSDT"},
		DailyResetTimezone: "UTC",
	}
	cfg.Intervals.DecisionSeconds = 60
	cfg.Intervals.OpenPositionRecheckSecs = 180
	cfg.Intervals.ExitPollSeconds = 5
	cfg.Limits.MaxLeveragePerTrade = 10
	cfg.Limits.MaxPositionSizePercent = 20
	cfg.Limits.MaxTotalExposurePercent = 60
	cfg.Limits.MaxHoldMinutes = 45
	cfg.Fees.RatePerSide = 0.0002
	cfg.Trailing.ActivatePnlPercent = 30
	cfg.Trailing.TrailPercent = 0.3
	cfg.Gateway.MarginMode = "ISOLATED"
	cfg.LLM.HistoryTrades = 20
	return cfg
}

type testRig struct {
	eng      *Engine
	gw       *fakeGateway
	decider  *fakeDecider
	store    *fakeStore
	notifier *fakeNotifier
	cfg      *store.Config
}

func newTestRig() *testRig {
	cfg := testConfig()
	gw := newFakeGateway()
	decider := &fakeDecider{}
	ts := &fakeStore{}
	nt := &fakeNotifier{}
	eng := New(cfg, gw, decider, ts, nt)
	eng.refreshBalance(context.Background())
	return &testRig{eng: eng, gw: gw, decider: decider, store: ts, notifier: nt, cfg: cfg}
}

func longRecommendation() types.Recommendation {
	return types.Recommendation{
		Action:            "LONG",
		Confidence:        0.8,
		SizePercent:       10,
		Leverage:          5,
		StopLossPercent:   1,
		TakeProfitPercent: 1,
		Rationale:         "test",
	}
}

func openTestPosition(eng *Engine, symbol string, side types.Side, entry, qty float64, leverage int, stop, take float64) types.Position {
	pos := types.Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		Quantity:   qty,
		Leverage:   leverage,
		StopLoss:   stop,
		TakeProfit: take,
		EntryTime:  time.Now(),
	}
	eng.ledger.set(pos)
	return pos
}
