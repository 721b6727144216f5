package engine

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuardSingleWinner(t *testing.T) {
	g := newInFlightGuard()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.tryBeginOpen("BTCUSDT") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestGuardMutualExclusion(t *testing.T) {
	g := newInFlightGuard()

	if !g.tryBeginOpen("BTCUSDT") {
		t.Fatal("first open should acquire")
	}
	if g.tryBeginClose("BTCUSDT") {
		t.Fatal("close must not acquire while opening")
	}
	if g.tryBeginOpen("BTCUSDT") {
		t.Fatal("second open must not acquire")
	}
	if !g.tryBeginOpen("ETHUSDT") {
		t.Fatal("other symbols must be independent")
	}

	g.endOpen("BTCUSDT")
	if !g.tryBeginClose("BTCUSDT") {
		t.Fatal("close should acquire after open released")
	}
	if g.tryBeginOpen("BTCUSDT") {
		t.Fatal("open must not acquire while closing")
	}
	g.endClose("BTCUSDT")
}

func TestGuardQueries(t *testing.T) {
	g := newInFlightGuard()

	g.tryBeginOpen("BTCUSDT")
	if !g.isOpening("BTCUSDT") || g.isClosing("BTCUSDT") {
		t.Fatal("opening marker not reported")
	}
	g.endOpen("BTCUSDT")
	if g.isOpening("BTCUSDT") {
		t.Fatal("marker leaked after release")
	}
}
