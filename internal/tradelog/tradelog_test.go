package tradelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-trading-bot/internal/types"
)

func sampleTrade(symbol string, exit time.Time) types.ClosedTrade {
	return types.ClosedTrade{
		Symbol:        symbol,
		Side:          types.SideLong,
		EntryPrice:    50000,
		ExitPrice:     49400,
		Quantity:      0.01,
		Leverage:      5,
		GrossPnlUsd:   -6,
		CommissionUsd: 0.1988,
		NetPnlUsd:     -6.1988,
		EntryTime:     exit.Add(-10 * time.Minute),
		ExitTime:      exit,
		ExitReason:    types.ExitStopLoss,
	}
}

func TestAppendAndLoadTrades(t *testing.T) {
	s := New(t.TempDir(), time.UTC)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", now)))
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("ETHUSDT", now.Add(time.Hour))))

	trades, err := s.LoadTrades(ctx, now)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BTCUSDT", trades[0].Symbol)
	assert.Equal(t, "ETHUSDT", trades[1].Symbol)
	assert.InDelta(t, -6.1988, trades[0].NetPnlUsd, 1e-9)
}

func TestLoadTradesMissingDay(t *testing.T) {
	s := New(t.TempDir(), time.UTC)

	trades, err := s.LoadTrades(context.Background(), time.Now())
	require.NoError(t, err, "a day with no trades is not an error")
	assert.Empty(t, trades)
}

func TestDailyFileBoundaryFollowsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	dir := t.TempDir()
	s := New(dir, loc)
	ctx := context.Background()

	// 02:00 UTC on March 5th is still March 4th in New York.
	exit := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", exit)))

	_, err = os.Stat(filepath.Join(dir, "trades", "2026-03-04.jsonl"))
	assert.NoError(t, err)
}

func TestDailyStateRoundtrip(t *testing.T) {
	s := New(t.TempDir(), time.UTC)
	ctx := context.Background()

	want := types.DailyState{Day: "2026-03-04", Pnl: 12.5, Trades: 7}
	require.NoError(t, s.SaveDailyState(ctx, want))

	got, err := s.LoadDailyState(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Overwrites are whole-file, never partial.
	want.Trades = 8
	require.NoError(t, s.SaveDailyState(ctx, want))
	got, err = s.LoadDailyState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Trades)
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, time.UTC)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -10)
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", old)))
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("ETHUSDT", time.Now())))

	oldPath := s.tradesPath(old)
	require.NoError(t, os.Chtimes(oldPath, old, old))

	require.NoError(t, s.CompressOlder(7))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err), "old file must be removed after compression")
	_, err = os.Stat(oldPath + ".gz")
	assert.NoError(t, err)
	_, err = os.Stat(s.tradesPath(time.Now()))
	assert.NoError(t, err, "recent file stays uncompressed")
}

func TestCompressOlderNoRetention(t *testing.T) {
	s := New(t.TempDir(), time.UTC)
	assert.NoError(t, s.CompressOlder(0), "retention disabled is a no-op")
}
