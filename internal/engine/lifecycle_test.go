package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-trading-bot/internal/types"
)

func TestCloseSymbolManual(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 0, 0)

	require.NoError(t, rig.eng.CloseSymbol(ctx, "BTCUSDT", types.ExitManual))
	assert.False(t, rig.eng.ledger.has("BTCUSDT"))
	assert.Equal(t, types.ExitManual, rig.store.lastTrade().ExitReason)
}

func TestCloseSymbolNoPosition(t *testing.T) {
	rig := newTestRig()

	err := rig.eng.CloseSymbol(context.Background(), "BTCUSDT", types.ExitManual)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAddRemoveSymbol(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	require.NoError(t, rig.eng.AddSymbol(ctx, "SOLUSDT"))
	assert.True(t, rig.eng.tradesSymbol("SOLUSDT"))
	require.NoError(t, rig.eng.AddSymbol(ctx, "SOLUSDT"), "re-adding is idempotent")

	require.NoError(t, rig.eng.RemoveSymbol(ctx, "SOLUSDT"))
	assert.False(t, rig.eng.tradesSymbol("SOLUSDT"))

	err := rig.eng.RemoveSymbol(ctx, "SOLUSDT")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "removing an unknown symbol is a client error")

	assert.ErrorAs(t, rig.eng.AddSymbol(ctx, ""), &verr)
}

func TestRemoveSymbolKeepsOpenPositionManaged(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	openTestPosition(rig.eng, "ETHUSDT", types.SideLong, 2500, 1, 3, 2400, 0)
	require.NoError(t, rig.eng.RemoveSymbol(ctx, "ETHUSDT"))

	// Exit rules still run for the retained position; the close itself is
	// asynchronous.
	rig.eng.handlePrice(ctx, "ETHUSDT", 2390, time.Now())
	assert.Eventually(t, func() bool {
		return !rig.eng.ledger.has("ETHUSDT")
	}, time.Second, 5*time.Millisecond, "stop must still fire after removal")
}

func TestSnapshot(t *testing.T) {
	rig := newTestRig()

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 0, 0)

	snap := rig.eng.Snapshot(context.Background())
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 10000, snap.State.Balance, 1e-9)
	assert.InDelta(t, 100, snap.Exposure.MarginUsed, 1e-9)
	assert.Len(t, snap.Symbols, 2)
}

func TestDailyStateRestoredForSameDay(t *testing.T) {
	cfg := testConfig()
	gw := newFakeGateway()
	ts := &fakeStore{daily: types.DailyState{
		Day:    time.Now().UTC().Format(time.DateOnly),
		Pnl:    42.5,
		Trades: 3,
	}}
	eng := New(cfg, gw, &fakeDecider{}, ts, &fakeNotifier{})

	eng.loadDailyState(context.Background())
	state := eng.botState()
	assert.InDelta(t, 42.5, state.TodayPnl, 1e-9)
	assert.Equal(t, 3, state.TodayTrades)
}

func TestDailyStateIgnoredForOldDay(t *testing.T) {
	cfg := testConfig()
	gw := newFakeGateway()
	ts := &fakeStore{daily: types.DailyState{Day: "2020-01-01", Pnl: 99, Trades: 12}}
	eng := New(cfg, gw, &fakeDecider{}, ts, &fakeNotifier{})

	eng.loadDailyState(context.Background())
	state := eng.botState()
	assert.Zero(t, state.TodayPnl, "stale day must not leak into today")
	assert.Zero(t, state.TodayTrades)
}

func TestMaybeResetDay(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	rig.eng.stateMu.Lock()
	rig.eng.state.LastResetDay = "2020-01-01"
	rig.eng.state.TodayPnl = 15
	rig.eng.state.TodayTrades = 4
	rig.eng.stateMu.Unlock()

	rig.eng.maybeResetDay(ctx)

	state := rig.eng.botState()
	assert.Zero(t, state.TodayPnl)
	assert.Zero(t, state.TodayTrades)
	assert.Equal(t, time.Now().UTC().Format(time.DateOnly), state.LastResetDay)

	// Same day again is a no-op.
	rig.eng.stateMu.Lock()
	rig.eng.state.TodayPnl = 7
	rig.eng.stateMu.Unlock()
	rig.eng.maybeResetDay(ctx)
	assert.InDelta(t, 7, rig.eng.botState().TodayPnl, 1e-9)
}
