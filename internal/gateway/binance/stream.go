package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scalp-trading-bot/internal/types"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// stream maintains the futures market websocket: aggTrade and mark-price
// events for the subscribed symbols, pushed to the onTick callback. The tick
// path is hot, so it logs through a dedicated zap logger.
type stream struct {
	wsURL  string
	onTick func(types.Tick)
	log    *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols map[string]bool
	running bool
	nextID  int

	done chan struct{}
}

func newStream(wsURL string, onTick func(types.Tick)) *stream {
	log, _ := zap.NewProduction()
	if log == nil {
		log = zap.NewNop()
	}
	return &stream{
		wsURL:   wsURL,
		onTick:  onTick,
		log:     log.Named("stream"),
		symbols: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// start connects and launches the read/ping loops. Safe to call once.
func (s *stream) start(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	for _, sym := range symbols {
		s.symbols[sym] = true
	}
	s.running = true
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}

	go s.readLoop(ctx)
	go s.pingLoop()
	return nil
}

func (s *stream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	if s.conn != nil {
		_ = s.conn.Close()
	}
	_ = s.log.Sync()
}

func (s *stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	s.conn = conn
	subs := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		subs = append(subs, sym)
	}
	s.mu.Unlock()

	for _, sym := range subs {
		if err := s.sendSubscribe("SUBSCRIBE", sym); err != nil {
			return err
		}
	}

	s.log.Info("stream connected", zap.String("url", s.wsURL), zap.Int("symbols", len(subs)))
	return nil
}

func (s *stream) subscribe(symbol string) error {
	s.mu.Lock()
	if s.symbols[symbol] {
		s.mu.Unlock()
		return nil
	}
	s.symbols[symbol] = true
	connected := s.conn != nil
	s.mu.Unlock()

	if !connected {
		return nil // picked up on connect
	}
	return s.sendSubscribe("SUBSCRIBE", symbol)
}

func (s *stream) unsubscribe(symbol string) error {
	s.mu.Lock()
	if !s.symbols[symbol] {
		s.mu.Unlock()
		return nil
	}
	delete(s.symbols, symbol)
	connected := s.conn != nil
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.sendSubscribe("UNSUBSCRIBE", symbol)
}

func (s *stream) sendSubscribe(method, symbol string) error {
	lower := strings.ToLower(symbol)
	msg := map[string]any{
		"method": method,
		"params": []string{lower + "@aggTrade", lower + "@markPrice@1s"},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg["id"] = s.nextID
	if s.conn == nil {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *stream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Warn("ping failed", zap.Error(err))
			}
		}
	}
}

func (s *stream) readLoop(ctx context.Context) {
	delay := reconnectDelay
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			if err := s.connect(ctx); err != nil {
				s.log.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				select {
				case <-s.done:
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > maxReconnectDelay {
					delay = maxReconnectDelay
				}
				continue
			}
			delay = reconnectDelay
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Warn("stream read failed, reconnecting", zap.Error(err))
			_ = conn.Close()
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			continue
		}

		if tick, ok := parseTick(raw); ok {
			s.onTick(tick)
		}
	}
}

// parseTick converts a raw stream event into a Tick. Subscription acks and
// unknown event types are skipped.
func parseTick(raw []byte) (types.Tick, bool) {
	var ev struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Trade  int64  `json:"T"`
		Time   int64  `json:"E"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return types.Tick{}, false
	}

	price := parseFloat(ev.Price)
	if price <= 0 || ev.Symbol == "" {
		return types.Tick{}, false
	}

	switch ev.Event {
	case "aggTrade":
		ts := ev.Trade
		if ts == 0 {
			ts = ev.Time
		}
		return types.Tick{
			Symbol: ev.Symbol,
			Type:   types.TickTrade,
			Price:  price,
			Time:   time.UnixMilli(ts),
		}, true
	case "markPriceUpdate":
		return types.Tick{
			Symbol: ev.Symbol,
			Type:   types.TickMarkPrice,
			Price:  price,
			Time:   time.UnixMilli(ev.Time),
		}, true
	}
	return types.Tick{}, false
}
