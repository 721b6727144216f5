package interfaces

import (
	"context"

	"scalp-trading-bot/internal/types"
)

// Notifier is the outbound event sink. Consumers observe engine mutations;
// they never mutate engine state back.
type Notifier interface {
	Info(ctx context.Context, msg string)
	Error(ctx context.Context, err error)
	TradeClosed(ctx context.Context, trade types.ClosedTrade)
	PositionOpened(ctx context.Context, pos types.Position)
}
