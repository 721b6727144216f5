package interfaces

import (
	"context"
	"errors"

	"scalp-trading-bot/internal/types"
)

// ErrPositionMissing is matched (via errors.Is) by gateway errors meaning the
// exchange has nothing left to close for the symbol. Callers evict the local
// position instead of retrying.
var ErrPositionMissing = errors.New("position missing on exchange")

// Gateway is the exchange-facing contract: signed REST plus a push stream of
// price events. SetMarginMode must treat "already set" as success.
type Gateway interface {
	GetBalance(ctx context.Context) (types.Balance, error)
	GetOpenPositions(ctx context.Context) ([]types.ExchangePosition, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
	CreateMarketOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)
	GetSymbolPrecision(ctx context.Context, symbol string) (types.SymbolPrecision, error)
	SyncTime(ctx context.Context) error

	// Stream lifecycle. Ticks delivers trade and mark-price events for all
	// subscribed symbols until Stop is called.
	Start(ctx context.Context, symbols []string) error
	Stop(ctx context.Context)
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	Ticks() <-chan types.Tick
}
