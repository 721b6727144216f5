package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-trading-bot/internal/types"
)

func TestDecideSymbolOpensPosition(t *testing.T) {
	rig := newTestRig()
	rig.decider.rec = longRecommendation()

	rig.eng.decideSymbol(context.Background(), "BTCUSDT")

	assert.True(t, rig.eng.ledger.has("BTCUSDT"))
	assert.Equal(t, 1, rig.gw.orderCount())
}

func TestDecideSymbolHoldDoesNothing(t *testing.T) {
	rig := newTestRig()
	rig.decider.rec = types.Recommendation{Action: "HOLD", Rationale: "chop"}

	rig.eng.decideSymbol(context.Background(), "BTCUSDT")

	assert.False(t, rig.eng.ledger.has("BTCUSDT"))
	assert.Equal(t, 0, rig.gw.orderCount())
}

func TestDecideSymbolPrescreenDeclines(t *testing.T) {
	rig := newTestRig()
	rig.cfg.LLM.Prescreen = true
	rig.decider.screen = false
	rig.decider.rec = longRecommendation()

	rig.eng.decideSymbol(context.Background(), "BTCUSDT")

	assert.False(t, rig.eng.ledger.has("BTCUSDT"), "declined pre-screen must skip the open")
}

func TestDecideSymbolUnknownSymbolIgnored(t *testing.T) {
	rig := newTestRig()
	rig.decider.rec = longRecommendation()

	rig.eng.decideSymbol(context.Background(), "DOGEUSDT")

	assert.Equal(t, 0, rig.gw.orderCount())
}

func TestDecideSymbolRespectsRecheckInterval(t *testing.T) {
	rig := newTestRig()
	rig.decider.rec = longRecommendation()

	pos := openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)
	pos.LastDecisionUpdate = time.Now()
	rig.eng.ledger.set(pos)

	rig.eng.decideSymbol(context.Background(), "BTCUSDT")

	got, _ := rig.eng.ledger.get("BTCUSDT")
	assert.Equal(t, pos.StopLoss, got.StopLoss, "fresh position must not be rechecked yet")
	assert.Equal(t, 0, rig.gw.orderCount(), "no duplicate open while position exists")
}

func TestReviseStopsDirectionConsistent(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	pos := openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	rig.decider.rec = types.Recommendation{
		Action: "HOLD", StopLoss: 49800, TakeProfit: 50800,
	}
	rig.eng.reviseStops(ctx, pos, 50000)

	got := mustGet(t, rig.eng, "BTCUSDT")
	assert.InDelta(t, 49800, got.StopLoss, 1e-9)
	assert.InDelta(t, 50800, got.TakeProfit, 1e-9)
	assert.True(t, got.LastDecisionUpdate.After(pos.LastDecisionUpdate))
}

func TestReviseStopsRejectsWrongSide(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	pos := openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)

	// Stop above entry and take below entry are both wrong for a LONG.
	rig.decider.rec = types.Recommendation{
		Action: "HOLD", StopLoss: 50200, TakeProfit: 49900,
	}
	rig.eng.reviseStops(ctx, pos, 50000)

	got := mustGet(t, rig.eng, "BTCUSDT")
	assert.InDelta(t, 49500, got.StopLoss, 1e-9, "wrong-side revision keeps the old stop")
	assert.InDelta(t, 50500, got.TakeProfit, 1e-9)
}

func TestReviseStopsPercentRelativeToEntry(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	pos := openTestPosition(rig.eng, "ETHUSDT", types.SideShort, 2500, 1, 3, 0, 0)

	rig.decider.rec = types.Recommendation{
		Action: "HOLD", StopLossPercent: 2, TakeProfitPercent: 4,
	}
	rig.eng.reviseStops(ctx, pos, 2480)

	got := mustGet(t, rig.eng, "ETHUSDT")
	// SHORT: stop 2% above entry, take 4% below, snapped to the 0.1 tick.
	assert.InDelta(t, 2550, got.StopLoss, 1e-9)
	assert.InDelta(t, 2400, got.TakeProfit, 1e-9)
}

func TestReviseStopsSkippedWhileClosing(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	pos := openTestPosition(rig.eng, "BTCUSDT", types.SideLong, 50000, 0.01, 5, 49500, 50500)
	require.True(t, rig.eng.guard.tryBeginClose("BTCUSDT"))
	defer rig.eng.guard.endClose("BTCUSDT")

	rig.decider.rec = types.Recommendation{Action: "HOLD", StopLoss: 49800}
	rig.eng.reviseStops(ctx, pos, 50000)

	got := mustGet(t, rig.eng, "BTCUSDT")
	assert.InDelta(t, 49500, got.StopLoss, 1e-9, "no revision while a close is in flight")
}
