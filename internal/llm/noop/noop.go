// Package noop is the fallback decision provider used when no model is
// configured. It never trades.
package noop

import (
	"context"

	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/types"
)

type Decider struct{}

func New() *Decider {
	return &Decider{}
}

func (d *Decider) Screen(ctx context.Context, symbol string, price float64) (bool, error) {
	return false, nil
}

func (d *Decider) Recommend(ctx context.Context, snap types.MarketSnapshot, history []types.ClosedTrade) (types.Recommendation, error) {
	logger.Debug(ctx, "Noop decider called, always HOLD", "symbol", snap.Symbol)
	return types.Recommendation{Action: "HOLD", Rationale: "noop_decider"}, nil
}

func (d *Decider) OnTradeClosed(ctx context.Context, trade types.ClosedTrade) error {
	return nil
}
