package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/types"
)

// Params configures the gateway client.
type Params struct {
	Mode            string // DRY_RUN or LIVE
	APIKey          string
	SecretKey       string
	BaseURL         string
	WsURL           string
	RecvWindowMs    int
	Timeout         time.Duration
	OrdersPerWindow int
	WindowSeconds   int
	QuoteAsset      string
}

// Client is the USDT-margined futures gateway: signed REST plus the market
// stream. In DRY_RUN mode orders are simulated against the last seen price
// and a paper position book; everything else behaves identically.
type Client struct {
	p  Params
	hc *http.Client

	// Server-clock skew in milliseconds; signed requests are
	// timestamp-sensitive, so this is refreshed periodically.
	timeOffsetMs atomic.Int64

	throttle *orderThrottle
	stream   *stream
	ticks    chan types.Tick

	// filters cache: symbol -> trading filters
	filtersMu sync.RWMutex
	filters   map[string]types.SymbolPrecision

	// last stream price per symbol, used for DRY_RUN fills
	lastPrice sync.Map // symbol -> float64

	// paper book for DRY_RUN
	paperMu  sync.Mutex
	paperPos map[string]*types.ExchangePosition
	paperBal types.Balance
}

var _ interfaces.Gateway = (*Client)(nil)

// New creates a gateway client.
func New(p Params) *Client {
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	c := &Client{
		p:        p,
		hc:       &http.Client{Timeout: p.Timeout},
		throttle: newOrderThrottle(p.OrdersPerWindow, time.Duration(p.WindowSeconds)*time.Second),
		ticks:    make(chan types.Tick, 1024),
		filters:  make(map[string]types.SymbolPrecision),
		paperPos: make(map[string]*types.ExchangePosition),
		paperBal: types.Balance{Asset: p.QuoteAsset, Total: 10000, Available: 10000},
	}
	c.stream = newStream(p.WsURL, c.onTick)
	return c
}

func (c *Client) dryRun() bool { return c.p.Mode == "DRY_RUN" }

func (c *Client) onTick(t types.Tick) {
	c.lastPrice.Store(t.Symbol, t.Price)
	select {
	case c.ticks <- t:
	default:
		// Consumer is behind; dropping a tick is safe, the next one
		// supersedes it.
	}
}

// ----- signing -----

func (c *Client) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(c.p.SecretKey))
	_, _ = io.WriteString(mac, q.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) timestampMs() int64 {
	return time.Now().UnixMilli() + c.timeOffsetMs.Load()
}

func (c *Client) request(ctx context.Context, method, path string, q url.Values, signed bool) ([]byte, error) {
	if q == nil {
		q = url.Values{}
	}
	if signed {
		q.Set("timestamp", strconv.FormatInt(c.timestampMs(), 10))
		if c.p.RecvWindowMs > 0 {
			q.Set("recvWindow", strconv.Itoa(c.p.RecvWindowMs))
		}
		q.Set("signature", c.sign(q))
	}

	u := strings.TrimRight(c.p.BaseURL, "/") + path
	var body io.Reader
	if method == http.MethodGet {
		u += "?" + q.Encode()
	} else {
		body = strings.NewReader(q.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.p.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway read %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var ae APIError
		if json.Unmarshal(b, &ae) == nil && ae.Code != 0 {
			return nil, &ae
		}
		return nil, fmt.Errorf("gateway %s %s: HTTP %d: %s", method, path, resp.StatusCode, string(b))
	}
	return b, nil
}

// ----- time sync -----

// SyncTime measures server-clock skew and stores the offset applied to all
// signed request timestamps.
func (c *Client) SyncTime(ctx context.Context) error {
	b, err := c.request(ctx, http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return err
	}
	var r struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("parse server time: %w", err)
	}
	offset := r.ServerTime - time.Now().UnixMilli()
	c.timeOffsetMs.Store(offset)
	logger.Debug(ctx, "Server time synchronized", "offset_ms", offset)
	return nil
}

// ----- account -----

func (c *Client) GetBalance(ctx context.Context) (types.Balance, error) {
	if c.dryRun() {
		c.paperMu.Lock()
		defer c.paperMu.Unlock()
		return c.paperBal, nil
	}

	b, err := c.request(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return types.Balance{}, err
	}
	var rows []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(b, &rows); err != nil {
		return types.Balance{}, fmt.Errorf("parse balance: %w", err)
	}
	for _, row := range rows {
		if row.Asset == c.p.QuoteAsset {
			return types.Balance{
				Asset:     row.Asset,
				Total:     parseFloat(row.Balance),
				Available: parseFloat(row.AvailableBalance),
			}, nil
		}
	}
	return types.Balance{}, fmt.Errorf("no %s balance reported", c.p.QuoteAsset)
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]types.ExchangePosition, error) {
	if c.dryRun() {
		c.paperMu.Lock()
		defer c.paperMu.Unlock()
		out := make([]types.ExchangePosition, 0, len(c.paperPos))
		for _, p := range c.paperPos {
			out = append(out, *p)
		}
		return out, nil
	}

	b, err := c.request(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol        string `json:"symbol"`
		PositionAmt   string `json:"positionAmt"`
		EntryPrice    string `json:"entryPrice"`
		Leverage      string `json:"leverage"`
		UnrealizedPnl string `json:"unRealizedProfit"`
	}
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}

	var out []types.ExchangePosition
	for _, row := range rows {
		amt := parseFloat(row.PositionAmt)
		if amt == 0 {
			continue
		}
		side := types.SideLong
		if amt < 0 {
			side = types.SideShort
			amt = -amt
		}
		lev, _ := strconv.Atoi(row.Leverage)
		out = append(out, types.ExchangePosition{
			Symbol:        row.Symbol,
			Side:          side,
			Quantity:      amt,
			EntryPrice:    parseFloat(row.EntryPrice),
			Leverage:      lev,
			UnrealizedPnl: parseFloat(row.UnrealizedPnl),
		})
	}
	return out, nil
}

// ----- market data -----

func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if v, ok := c.lastPrice.Load(symbol); ok {
		return v.(float64), nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	b, err := c.request(ctx, http.MethodGet, "/fapi/v1/ticker/price", q, false)
	if err != nil {
		return 0, err
	}
	var r struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	price := parseFloat(r.Price)
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price for %s", symbol)
	}
	return price, nil
}

func (c *Client) GetSymbolPrecision(ctx context.Context, symbol string) (types.SymbolPrecision, error) {
	c.filtersMu.RLock()
	if f, ok := c.filters[symbol]; ok {
		c.filtersMu.RUnlock()
		return f, nil
	}
	c.filtersMu.RUnlock()

	q := url.Values{}
	q.Set("symbol", symbol)
	b, err := c.request(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", q, false)
	if err != nil {
		return types.SymbolPrecision{}, err
	}
	var r struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinQty      string `json:"minQty"`
				MinNotional string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return types.SymbolPrecision{}, fmt.Errorf("parse exchange info: %w", err)
	}

	var f types.SymbolPrecision
	for _, s := range r.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, flt := range s.Filters {
			switch flt.FilterType {
			case "LOT_SIZE":
				f.QuantityStep = parseFloat(flt.StepSize)
				f.MinQuantity = parseFloat(flt.MinQty)
			case "PRICE_FILTER":
				f.PriceStep = parseFloat(flt.TickSize)
			case "MIN_NOTIONAL":
				f.MinNotional = parseFloat(flt.MinNotional)
			}
		}
	}
	if f.QuantityStep == 0 {
		return types.SymbolPrecision{}, fmt.Errorf("no trading filters for %s", symbol)
	}

	c.filtersMu.Lock()
	c.filters[symbol] = f
	c.filtersMu.Unlock()
	return f, nil
}

// ----- settings -----

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if c.dryRun() {
		return nil
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	_, err := c.request(ctx, http.MethodPost, "/fapi/v1/leverage", q, true)
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == codeLeverageNoChange {
		return nil
	}
	return err
}

func (c *Client) SetMarginMode(ctx context.Context, symbol, mode string) error {
	if c.dryRun() {
		return nil
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("marginType", strings.ToUpper(mode))
	_, err := c.request(ctx, http.MethodPost, "/fapi/v1/marginType", q, true)
	// "already set" is success: the call is idempotent.
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == codeMarginModeNoChange {
		return nil
	}
	return err
}

// ----- orders -----

func (c *Client) CreateMarketOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if err := c.throttle.wait(ctx); err != nil {
		return nil, err
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	if c.dryRun() {
		return c.paperOrder(ctx, req)
	}

	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", "MARKET")
	q.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	q.Set("newClientOrderId", req.ClientOrderID)
	q.Set("newOrderRespType", "RESULT")
	if req.ReduceOnly {
		q.Set("reduceOnly", "true")
	}

	b, err := c.request(ctx, http.MethodPost, "/fapi/v1/order", q, true)
	if err != nil {
		return nil, err
	}
	var r struct {
		OrderID  int64  `json:"orderId"`
		AvgPrice string `json:"avgPrice"`
		Fills    []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	result := &types.OrderResult{
		OrderID:  strconv.FormatInt(r.OrderID, 10),
		AvgPrice: parseFloat(r.AvgPrice),
	}
	for _, f := range r.Fills {
		result.Fills = append(result.Fills, types.OrderFill{
			Price:    parseFloat(f.Price),
			Quantity: parseFloat(f.Qty),
		})
	}
	return result, nil
}

// paperOrder simulates a fill at the last seen price and keeps the paper
// position book consistent so reconciliation behaves as it would live.
func (c *Client) paperOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	price, err := c.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	c.paperMu.Lock()
	defer c.paperMu.Unlock()

	pos := c.paperPos[req.Symbol]
	if req.ReduceOnly {
		if pos == nil {
			return nil, &APIError{Code: codeReduceOnlyRejected, Message: "ReduceOnly Order is rejected"}
		}
		pos.Quantity -= req.Quantity
		if pos.Quantity <= 1e-12 {
			delete(c.paperPos, req.Symbol)
		}
	} else {
		side := types.SideLong
		if req.Side == types.OrderSell {
			side = types.SideShort
		}
		switch {
		case pos == nil:
			c.paperPos[req.Symbol] = &types.ExchangePosition{
				Symbol:     req.Symbol,
				Side:       side,
				Quantity:   req.Quantity,
				EntryPrice: price,
				Leverage:   1,
			}
		case pos.Side == side:
			// Adding to the same side moves the entry to the volume-weighted
			// average, as one-way position mode does.
			total := pos.Quantity + req.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*req.Quantity) / total
			pos.Quantity = total
		default:
			// An opposite-side order nets the book; crossing zero flips the
			// side with a fresh entry at the fill price.
			remaining := req.Quantity - pos.Quantity
			switch {
			case remaining > 1e-12:
				pos.Side = side
				pos.Quantity = remaining
				pos.EntryPrice = price
			case remaining < -1e-12:
				pos.Quantity = -remaining
			default:
				delete(c.paperPos, req.Symbol)
			}
		}
	}

	logger.Debug(ctx, "Simulated order fill",
		"symbol", req.Symbol, "side", req.Side, "qty", req.Quantity, "price", price)

	return &types.OrderResult{
		OrderID:  "paper-" + req.ClientOrderID,
		AvgPrice: price,
		Fills:    []types.OrderFill{{Price: price, Quantity: req.Quantity}},
	}, nil
}

// ----- stream lifecycle -----

func (c *Client) Start(ctx context.Context, symbols []string) error {
	return c.stream.start(ctx, symbols)
}

func (c *Client) Stop(ctx context.Context) {
	c.stream.stop()
}

func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	return c.stream.subscribe(symbol)
}

func (c *Client) Unsubscribe(ctx context.Context, symbol string) error {
	return c.stream.unsubscribe(symbol)
}

func (c *Client) Ticks() <-chan types.Tick {
	return c.ticks
}

// ----- helpers -----

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// orderThrottle serializes order submissions against a short sliding window
// to stay under the exchange's order-rate limits.
type orderThrottle struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	sent   []time.Time
}

func newOrderThrottle(limit int, window time.Duration) *orderThrottle {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &orderThrottle{window: window, limit: limit}
}

// wait blocks until an order submission slot is free or the context ends.
func (t *orderThrottle) wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-t.window)
		kept := t.sent[:0]
		for _, ts := range t.sent {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		t.sent = kept

		if len(t.sent) < t.limit {
			t.sent = append(t.sent, now)
			t.mu.Unlock()
			return nil
		}
		sleep := t.sent[0].Add(t.window).Sub(now)
		t.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
