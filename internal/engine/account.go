package engine

import (
	"time"

	"scalp-trading-bot/internal/types"
)

// buildClosedTrade computes the commission-adjusted record for a close.
// Gross P&L comes straight from the price delta times quantity, never from
// the leveraged percentage return, so leverage is not applied twice.
// Commission is charged per side on both notionals.
func buildClosedTrade(pos types.Position, exitPrice float64, reason types.ExitReason, feeRatePerSide float64, exitTime time.Time) types.ClosedTrade {
	gross := (exitPrice - pos.EntryPrice) * pos.Quantity * pos.Side.Sign()
	commission := (pos.EntryPrice + exitPrice) * pos.Quantity * feeRatePerSide

	return types.ClosedTrade{
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Quantity:      pos.Quantity,
		Leverage:      pos.Leverage,
		StopLoss:      pos.StopLoss,
		TakeProfit:    pos.TakeProfit,
		GrossPnlPct:   pos.LeveragedPnlPercent(exitPrice),
		GrossPnlUsd:   gross,
		CommissionUsd: commission,
		NetPnlUsd:     gross - commission,
		EntryTime:     pos.EntryTime,
		ExitTime:      exitTime,
		ExitReason:    reason,
		Confidence:    pos.Confidence,
		Rationale:     pos.Rationale,
	}
}
