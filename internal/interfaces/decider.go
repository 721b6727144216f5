package interfaces

import (
	"context"

	"scalp-trading-bot/internal/types"
)

// Decider is the external decision provider. Screen is a cheap pre-check
// used when no position is open; Recommend is the full call. OnTradeClosed
// is fire-and-observe feedback, failures are logged and dropped.
type Decider interface {
	Screen(ctx context.Context, symbol string, price float64) (bool, error)
	Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error)
	OnTradeClosed(ctx context.Context, trade types.ClosedTrade) error
}
