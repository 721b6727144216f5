package gatewayobs

import (
	"context"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

// observableGateway wraps a Gateway with observability (logging & tracing)
type observableGateway struct {
	gw interfaces.Gateway
}

// Compile-time interface check
var _ interfaces.Gateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(gw interfaces.Gateway) interfaces.Gateway {
	return &observableGateway{gw: gw}
}

func (og *observableGateway) GetBalance(ctx context.Context) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.GetBalance")
	defer span.End()

	bal, err := og.gw.GetBalance(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err)
		return types.Balance{}, err
	}
	logger.DebugSkip(ctx, 1, "Balance fetched", "total", bal.Total, "available", bal.Available)
	return bal, nil
}

func (og *observableGateway) GetOpenPositions(ctx context.Context) ([]types.ExchangePosition, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.GetOpenPositions")
	defer span.End()

	positions, err := og.gw.GetOpenPositions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch open positions", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Open positions fetched", "count", len(positions))
	return positions, nil
}

func (og *observableGateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := og.gw.GetPrice(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price", err, "symbol", symbol)
		return 0, err
	}
	return price, nil
}

func (og *observableGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, span := trace.StartSpan(ctx, "gateway.SetLeverage")
	defer span.End()

	if err := og.gw.SetLeverage(ctx, symbol, leverage); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to set leverage", err, "symbol", symbol, "leverage", leverage)
		return err
	}
	logger.DebugSkip(ctx, 1, "Leverage set", "symbol", symbol, "leverage", leverage)
	return nil
}

func (og *observableGateway) SetMarginMode(ctx context.Context, symbol, mode string) error {
	ctx, span := trace.StartSpan(ctx, "gateway.SetMarginMode")
	defer span.End()

	if err := og.gw.SetMarginMode(ctx, symbol, mode); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to set margin mode", err, "symbol", symbol, "mode", mode)
		return err
	}
	return nil
}

func (og *observableGateway) CreateMarketOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.CreateMarketOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Quantity,
		"reduce_only", req.ReduceOnly,
	)

	result, err := og.gw.CreateMarketOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Quantity,
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Order placed",
		"symbol", req.Symbol,
		"order_id", result.OrderID,
		"avg_price", result.AvgPrice,
		"fills", len(result.Fills),
	)
	return result, nil
}

func (og *observableGateway) GetSymbolPrecision(ctx context.Context, symbol string) (types.SymbolPrecision, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.GetSymbolPrecision")
	defer span.End()

	prec, err := og.gw.GetSymbolPrecision(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch symbol precision", err, "symbol", symbol)
		return types.SymbolPrecision{}, err
	}
	return prec, nil
}

func (og *observableGateway) SyncTime(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "gateway.SyncTime")
	defer span.End()

	if err := og.gw.SyncTime(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to sync server time", err)
		return err
	}
	return nil
}

func (og *observableGateway) Start(ctx context.Context, symbols []string) error {
	ctx, span := trace.StartSpan(ctx, "gateway.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting market stream", "symbols", symbols)
	if err := og.gw.Start(ctx, symbols); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start market stream", err)
		return err
	}
	return nil
}

func (og *observableGateway) Stop(ctx context.Context) {
	logger.InfoSkip(ctx, 1, "Stopping market stream")
	og.gw.Stop(ctx)
}

func (og *observableGateway) Subscribe(ctx context.Context, symbol string) error {
	if err := og.gw.Subscribe(ctx, symbol); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to subscribe symbol", err, "symbol", symbol)
		return err
	}
	logger.InfoSkip(ctx, 1, "Symbol subscribed", "symbol", symbol)
	return nil
}

func (og *observableGateway) Unsubscribe(ctx context.Context, symbol string) error {
	if err := og.gw.Unsubscribe(ctx, symbol); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to unsubscribe symbol", err, "symbol", symbol)
		return err
	}
	logger.InfoSkip(ctx, 1, "Symbol unsubscribed", "symbol", symbol)
	return nil
}

func (og *observableGateway) Ticks() <-chan types.Tick {
	return og.gw.Ticks()
}
