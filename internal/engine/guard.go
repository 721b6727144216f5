package engine

import "sync"

// inFlightGuard holds the per-symbol opening/closing markers. It is the sole
// serialization point for position mutations: open, close, SL/TP update and
// reconciliation eviction all acquire the relevant marker first. A symbol is
// in at most one of the two sets at any time.
type inFlightGuard struct {
	mu      sync.Mutex
	opening map[string]struct{}
	closing map[string]struct{}
}

func newInFlightGuard() *inFlightGuard {
	return &inFlightGuard{
		opening: make(map[string]struct{}),
		closing: make(map[string]struct{}),
	}
}

// tryBeginOpen marks the symbol as opening. Returns false if an open or close
// is already in flight for it.
func (g *inFlightGuard) tryBeginOpen(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.opening[symbol]; ok {
		return false
	}
	if _, ok := g.closing[symbol]; ok {
		return false
	}
	g.opening[symbol] = struct{}{}
	return true
}

// endOpen releases the opening marker. Callers must defer this immediately
// after a successful tryBeginOpen so the marker is released on every exit
// path.
func (g *inFlightGuard) endOpen(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.opening, symbol)
}

// tryBeginClose marks the symbol as closing. Returns false if an open or
// close is already in flight for it.
func (g *inFlightGuard) tryBeginClose(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.closing[symbol]; ok {
		return false
	}
	if _, ok := g.opening[symbol]; ok {
		return false
	}
	g.closing[symbol] = struct{}{}
	return true
}

// endClose releases the closing marker.
func (g *inFlightGuard) endClose(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.closing, symbol)
}

// isOpening reports whether an open is currently in flight for the symbol.
func (g *inFlightGuard) isOpening(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.opening[symbol]
	return ok
}

// isClosing reports whether a close is currently in flight for the symbol.
func (g *inFlightGuard) isClosing(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.closing[symbol]
	return ok
}
