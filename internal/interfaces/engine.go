package interfaces

import (
	"context"

	"scalp-trading-bot/internal/types"
)

// Engine is the position-lifecycle engine exposed to the control surface.
type Engine interface {
	Run(ctx context.Context) error
	Snapshot(ctx context.Context) types.Snapshot
	CloseSymbol(ctx context.Context, symbol string, reason types.ExitReason) error
	AddSymbol(ctx context.Context, symbol string) error
	RemoveSymbol(ctx context.Context, symbol string) error
}
