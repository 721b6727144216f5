package interfaces

import (
	"context"

	"scalp-trading-bot/internal/types"
)

// TradeStore is the durable store: append-only closed trades plus one small
// daily-counter record.
type TradeStore interface {
	AppendTrade(ctx context.Context, trade types.ClosedTrade) error
	LoadDailyState(ctx context.Context) (types.DailyState, error)
	SaveDailyState(ctx context.Context, state types.DailyState) error
}
