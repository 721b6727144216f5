package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/types"
)

func TestCloseHappyPath(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	require.NoError(t, rig.eng.closePosition(ctx, "BTCUSDT", 49400, types.ExitStopLoss))

	assert.False(t, rig.eng.ledger.has("BTCUSDT"))
	assert.False(t, rig.eng.guard.isClosing("BTCUSDT"), "closing marker must be released")

	require.Equal(t, 1, rig.gw.orderCount())
	order := rig.gw.lastOrder()
	assert.Equal(t, types.OrderSell, order.Side)
	assert.True(t, order.ReduceOnly)
	assert.InDelta(t, 0.01, order.Quantity, 1e-12)

	require.Equal(t, 1, rig.store.tradeCount())
	trade := rig.store.lastTrade()
	assert.Equal(t, types.ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, trade.NetPnlUsd, rig.eng.botState().TodayPnl, 1e-9)
}

func TestCloseQuantityNeverExceedsOpen(t *testing.T) {
	rig := newTestRig()
	rig.gw.precision.QuantityStep = 0.001

	// A quantity that is not on the step boundary still rounds down.
	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.0105, 5, 0, 0)

	require.NoError(t, rig.eng.closePosition(context.Background(), "BTCUSDT", 50100, types.ExitManual))

	order := rig.gw.lastOrder()
	assert.LessOrEqual(t, order.Quantity, 0.0105)
	assert.InDelta(t, 0.010, order.Quantity, 1e-12)
}

func TestClosePositionMissingEvicts(t *testing.T) {
	rig := newTestRig()
	rig.gw.orderErr = fmt.Errorf("reduce-only rejected: %w", interfaces.ErrPositionMissing)

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	require.NoError(t, rig.eng.closePosition(context.Background(), "BTCUSDT", 49400, types.ExitStopLoss))

	assert.False(t, rig.eng.ledger.has("BTCUSDT"), "missing position must be evicted to stop retry storms")
	require.Equal(t, 1, rig.store.tradeCount())
	assert.Equal(t, types.ExitExternal, rig.store.lastTrade().ExitReason)
}

func TestCloseTransientErrorRetainsPosition(t *testing.T) {
	rig := newTestRig()
	rig.gw.orderErr = errors.New("gateway timeout")

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	err := rig.eng.closePosition(context.Background(), "BTCUSDT", 49400, types.ExitStopLoss)
	require.Error(t, err)

	assert.True(t, rig.eng.ledger.has("BTCUSDT"), "position must be retained for retry")
	assert.False(t, rig.eng.guard.isClosing("BTCUSDT"), "marker must still release on failure")
	assert.Equal(t, 0, rig.store.tradeCount())
}

func TestCloseConcurrencyRejected(t *testing.T) {
	rig := newTestRig()
	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	require.True(t, rig.eng.guard.tryBeginClose("BTCUSDT"))
	defer rig.eng.guard.endClose("BTCUSDT")

	err := rig.eng.closePosition(context.Background(), "BTCUSDT", 49400, types.ExitStopLoss)
	assert.ErrorIs(t, err, ErrConcurrencyRejected)
	assert.Equal(t, 0, rig.gw.orderCount())
}

func TestCloseFallsBackToEntryPrice(t *testing.T) {
	rig := newTestRig()
	rig.gw.orderResult = &types.OrderResult{OrderID: "x"} // no fills, no avg

	openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 0, 0)

	require.NoError(t, rig.eng.closePosition(context.Background(), "BTCUSDT", 0, types.ExitManual))

	trade := rig.store.lastTrade()
	assert.InDelta(t, 50000, trade.ExitPrice, 1e-9, "zero exit price falls back to entry")
	assert.InDelta(t, 0, trade.GrossPnlUsd, 1e-9)
}
