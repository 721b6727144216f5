package engine

import (
	"sync"

	"scalp-trading-bot/internal/types"
)

// ledger is the authoritative map from symbol to open Position. Exactly one
// Position exists per symbol. The mutex only protects map access; operation
// ordering is enforced by the inFlightGuard.
type ledger struct {
	mu        sync.RWMutex
	positions map[string]types.Position
}

func newLedger() *ledger {
	return &ledger{positions: make(map[string]types.Position)}
}

func (l *ledger) get(symbol string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

func (l *ledger) has(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.positions[symbol]
	return ok
}

func (l *ledger) set(pos types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[pos.Symbol] = pos
}

func (l *ledger) remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, symbol)
}

// update applies fn to the stored position if it still exists. Returns false
// if the position is gone (closed meanwhile).
func (l *ledger) update(symbol string, fn func(*types.Position)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return false
	}
	fn(&pos)
	l.positions[symbol] = pos
	return true
}

func (l *ledger) list() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

func (l *ledger) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
