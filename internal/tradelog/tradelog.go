// Package tradelog is the durable store: closed trades appended to daily
// JSONL files plus a small daily-counter record, with gzip retention for old
// files.
package tradelog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/types"
)

const stateFile = "daily_state.json"

// Store writes under one root directory:
//
//	<dir>/trades/2006-01-02.jsonl   appended closed trades
//	<dir>/daily_state.json          the day's counters
type Store struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

var _ interfaces.TradeStore = (*Store)(nil)

// New creates the store. Daily file boundaries follow loc, the configured
// daily-reset timezone.
func New(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{dir: dir, loc: loc}
}

func (s *Store) tradesPath(t time.Time) string {
	day := t.In(s.loc).Format(time.DateOnly)
	return filepath.Join(s.dir, "trades", day+".jsonl")
}

// AppendTrade appends one closed-trade record. Records are never rewritten.
func (s *Store) AppendTrade(ctx context.Context, trade types.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tradesPath(trade.ExitTime)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// LoadDailyState reads the persisted day counters.
func (s *Store) LoadDailyState(ctx context.Context) (types.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		return types.DailyState{}, err
	}
	var ds types.DailyState
	if err := json.Unmarshal(b, &ds); err != nil {
		return types.DailyState{}, fmt.Errorf("parse daily state: %w", err)
	}
	return ds, nil
}

// SaveDailyState writes the day counters atomically (tmp file + rename) so a
// crash mid-write never corrupts the record.
func (s *Store) SaveDailyState(ctx context.Context, ds types.DailyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, stateFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, stateFile))
}

// LoadTrades reads back the closed trades recorded for one day, newest last.
// Missing files mean an empty day, not an error.
func (s *Store) LoadTrades(ctx context.Context, day time.Time) ([]types.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.tradesPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []types.ClosedTrade
	dec := json.NewDecoder(f)
	for {
		var t types.ClosedTrade
		if err := dec.Decode(&t); err == io.EOF {
			break
		} else if err != nil {
			return out, fmt.Errorf("parse trade record: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// CompressOlder gzips trade files older than the retention window and
// removes the originals.
func (s *Store) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	return filepath.WalkDir(filepath.Join(s.dir, "trades"), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := os.Stat(p)
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		return compressFile(p)
	})
}

func compressFile(p string) error {
	gz := p + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(p)
}
