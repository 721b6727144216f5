package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT, used in P&L math.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// OrderSide is the direction of an order submission.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// EntryOrderSide maps a position side to the order side that opens it.
func EntryOrderSide(s Side) OrderSide {
	if s == SideShort {
		return OrderSell
	}
	return OrderBuy
}

// ExitOrderSide maps a position side to the order side that closes it.
func ExitOrderSide(s Side) OrderSide {
	if s == SideShort {
		return OrderBuy
	}
	return OrderSell
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "tp"
	ExitStopLoss   ExitReason = "sl"
	ExitManual     ExitReason = "manual"
	ExitTimeout    ExitReason = "timeout"
	ExitExternal   ExitReason = "external"
)

// Position is one open leveraged exposure. Exactly one Position exists per
// symbol in the ledger at any time. A StopLoss/TakeProfit of 0 means "not yet
// set by a decision cycle" and suppresses SL/TP checks until armed.
type Position struct {
	Symbol             string     `json:"symbol"`
	Side               Side       `json:"side"`
	EntryPrice         float64    `json:"entry_price"`
	Quantity           float64    `json:"quantity"`
	Leverage           int        `json:"leverage"`
	StopLoss           float64    `json:"stop_loss"`
	TakeProfit         float64    `json:"take_profit"`
	EntryTime          time.Time  `json:"entry_time"`
	LastDecisionUpdate time.Time  `json:"last_decision_update"`
	SizePercent        float64    `json:"size_percent"`
	Confidence         float64    `json:"confidence"`
	Rationale          string     `json:"rationale,omitempty"`
}

// Notional returns the position value in quote currency at entry.
func (p *Position) Notional() float64 {
	return p.Quantity * p.EntryPrice
}

// Margin returns the capital at risk (notional / leverage). Returns 0 for a
// non-positive leverage; callers decide how to treat that.
func (p *Position) Margin() float64 {
	if p.Leverage <= 0 {
		return 0
	}
	return p.Notional() / float64(p.Leverage)
}

// LeveragedPnlPercent is the unrealized return on margin at the given price.
func (p *Position) LeveragedPnlPercent(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	raw := (price - p.EntryPrice) / p.EntryPrice * p.Side.Sign()
	return raw * float64(p.Leverage) * 100
}

// Corrupted reports whether the position carries values no exit or P&L math
// should ever run on.
func (p *Position) Corrupted() bool {
	return p.EntryPrice <= 0 || p.Quantity <= 0 ||
		math.IsNaN(p.EntryPrice) || math.IsInf(p.EntryPrice, 0) ||
		math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0)
}

// Recommendation is the decision provider's output for one symbol. Absolute
// StopLoss/TakeProfit prices win over the percent fields when both are set.
type Recommendation struct {
	Action            string  `json:"action"` // LONG, SHORT or HOLD
	Confidence        float64 `json:"confidence"`
	SizePercent       float64 `json:"size_percent"`
	Leverage          int     `json:"leverage"`
	StopLoss          float64 `json:"stop_loss,omitempty"`
	TakeProfit        float64 `json:"take_profit,omitempty"`
	StopLossPercent   float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitPercent float64 `json:"take_profit_percent,omitempty"`
	Rationale         string  `json:"rationale,omitempty"`
}

// ClosedTrade is the immutable record appended once per closed position.
type ClosedTrade struct {
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	EntryPrice     float64    `json:"entry_price"`
	ExitPrice      float64    `json:"exit_price"`
	Quantity       float64    `json:"quantity"`
	Leverage       int        `json:"leverage"`
	StopLoss       float64    `json:"stop_loss"`
	TakeProfit     float64    `json:"take_profit"`
	GrossPnlPct    float64    `json:"gross_pnl_pct"`
	GrossPnlUsd    float64    `json:"gross_pnl_usd"`
	CommissionUsd  float64    `json:"commission_usd"`
	NetPnlUsd      float64    `json:"net_pnl_usd"`
	EntryTime      time.Time  `json:"entry_time"`
	ExitTime       time.Time  `json:"exit_time"`
	ExitReason     ExitReason `json:"exit_reason"`
	Confidence     float64    `json:"confidence"`
	Rationale      string     `json:"rationale,omitempty"`
}

// BotState carries the balance snapshot and the day's running counters.
// Persisted (as DailyState) so a restart does not double-count the day.
type BotState struct {
	Balance          float64   `json:"balance"`
	AvailableBalance float64   `json:"available_balance"`
	TodayPnl         float64   `json:"today_pnl"`
	TodayTrades      int       `json:"today_trades"`
	LastResetDay     string    `json:"last_reset_day"` // 2006-01-02 in the reference timezone
	UpdatedAt        time.Time `json:"updated_at"`
}

// DailyState is the persisted subset of BotState.
type DailyState struct {
	Day    string  `json:"day"`
	Pnl    float64 `json:"pnl"`
	Trades int     `json:"trades"`
}

// TickType distinguishes stream event kinds.
type TickType string

const (
	TickTrade     TickType = "trade"
	TickMarkPrice TickType = "markPrice"
)

// Tick is one price event from the exchange stream.
type Tick struct {
	Symbol string    `json:"symbol"`
	Type   TickType  `json:"type"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// OrderRequest describes a market order submission.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	ReduceOnly    bool
	ClientOrderID string
}

// OrderFill is one partial fill of an executed order.
type OrderFill struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}

// OrderResult is the gateway's view of an executed order.
type OrderResult struct {
	OrderID  string      `json:"order_id"`
	AvgPrice float64     `json:"avg_price"`
	Fills    []OrderFill `json:"fills,omitempty"`
}

// EntryPrice derives the realized entry price: fill-quantity-weighted average
// first, the gateway-reported average second, 0 when neither is usable.
// Callers must treat a non-positive result as a fatal open failure.
func (r *OrderResult) EntryPrice() float64 {
	var notional, qty float64
	for _, f := range r.Fills {
		if f.Price > 0 && f.Quantity > 0 {
			notional += f.Price * f.Quantity
			qty += f.Quantity
		}
	}
	if qty > 0 {
		return notional / qty
	}
	return r.AvgPrice
}

// SymbolPrecision holds the exchange trading filters for one symbol.
type SymbolPrecision struct {
	QuantityStep float64 `json:"quantity_step"`
	PriceStep    float64 `json:"price_step"`
	MinQuantity  float64 `json:"min_quantity"`
	MinNotional  float64 `json:"min_notional"`
}

// SnapQuantity rounds a quantity down to the lot step. Rounding is always
// toward zero, and the same rule applies at open and close time so a close
// can never exceed the opened quantity.
func (p SymbolPrecision) SnapQuantity(qty float64) float64 {
	if p.QuantityStep <= 0 || qty <= 0 {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(p.QuantityStep)
	snapped, _ := d.Div(s).Floor().Mul(s).Float64()
	return snapped
}

// SnapPrice rounds a price to the nearest tick.
func (p SymbolPrecision) SnapPrice(price float64) float64 {
	if p.PriceStep <= 0 || price <= 0 {
		return price
	}
	d := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(p.PriceStep)
	snapped, _ := d.Div(t).Round(0).Mul(t).Float64()
	return snapped
}

// ExchangePosition is a position as reported by the exchange.
type ExchangePosition struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	Leverage      int     `json:"leverage"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// Balance is the quote-asset account balance.
type Balance struct {
	Asset     string  `json:"asset"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// Exposure is the aggregate margin usage across open positions.
type Exposure struct {
	MarginUsed       float64 `json:"margin_used"`
	PercentOfBalance float64 `json:"percent_of_balance"`
}

// MarketSnapshot is the context handed to the decision provider.
type MarketSnapshot struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Balance          float64   `json:"balance"`
	AvailableBalance float64   `json:"available_balance"`
	OpenPositions    int       `json:"open_positions"`
	Time             time.Time `json:"time"`
}

// Snapshot is the engine state exposed on the control surface.
type Snapshot struct {
	Positions []Position `json:"positions"`
	State     BotState   `json:"state"`
	Exposure  Exposure   `json:"exposure"`
	Symbols   []string   `json:"symbols"`
}
