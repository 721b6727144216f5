package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scalp-trading-bot/internal/types"
)

func TestClosedTradeWorkedExample(t *testing.T) {
	// LONG 0.01 BTC at 50000 with 5x, stopped out at 49400 and 0.02% per
	// side: gross -6.00, commission 0.1988, net -6.1988.
	pos := types.Position{
		Symbol:     "BTCUSDT",
		Side:       types.SideLong,
		EntryPrice: 50000,
		Quantity:   0.01,
		Leverage:   5,
		StopLoss:   49500,
		TakeProfit: 50500,
		EntryTime:  time.Now(),
	}

	trade := buildClosedTrade(pos, 49400, types.ExitStopLoss, 0.0002, time.Now())

	assert.InDelta(t, -6.00, trade.GrossPnlUsd, 1e-9)
	assert.InDelta(t, 0.1988, trade.CommissionUsd, 1e-9)
	assert.InDelta(t, -6.1988, trade.NetPnlUsd, 1e-9)
	assert.Equal(t, types.ExitStopLoss, trade.ExitReason)
	// Leverage shows up only in the percentage return, never in the USD
	// figures.
	assert.InDelta(t, -6.0, trade.GrossPnlPct, 1e-9)
}

func TestCommissionSymmetry(t *testing.T) {
	const fee = 0.0004
	cases := []struct {
		name        string
		side        types.Side
		entry, exit float64
	}{
		{"long profit", types.SideLong, 100, 110},
		{"long loss", types.SideLong, 100, 92},
		{"short profit", types.SideShort, 100, 90},
		{"short loss", types.SideShort, 100, 107},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := types.Position{
				Symbol:     "ETHUSDT",
				Side:       tc.side,
				EntryPrice: tc.entry,
				Quantity:   2.5,
				Leverage:   3,
				EntryTime:  time.Now(),
			}
			trade := buildClosedTrade(pos, tc.exit, types.ExitManual, fee, time.Now())

			wantGross := (tc.exit - tc.entry) * 2.5 * tc.side.Sign()
			wantFees := (tc.entry + tc.exit) * 2.5 * fee
			assert.InDelta(t, wantGross, trade.GrossPnlUsd, 1e-9)
			assert.InDelta(t, wantFees, trade.CommissionUsd, 1e-9)
			assert.InDelta(t, wantGross-wantFees, trade.NetPnlUsd, 1e-9)
		})
	}
}
