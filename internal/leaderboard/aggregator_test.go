package leaderboard

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aventurer-games/dungeon-core-go/internal/ledger"
)

const anchorStart = int64(10 * WeekMs)

func stagedLedger(pageSize int, events ...ledger.RunCompletedEvent) *ledger.Memory {
	m := ledger.NewMemory(pageSize)
	m.SetWeekAnchor(ledger.WeekAnchor{CurrentWeek: 3, WeekStartMs: anchorStart})
	m.Append(events...)
	return m
}

func TestAllTimeRanking(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(10,
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 5, GemsCollected: 40, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 3, GemsCollected: 60, TimestampMs: 2},
		ledger.RunCompletedEvent{Address: "bob", Success: true, RoomsReached: 5, GemsCollected: 90, TimestampMs: 3},
		// Failed runs never rank, no matter how deep.
		ledger.RunCompletedEvent{Address: "carol", Success: false, RoomsReached: 9, GemsCollected: 10, TimestampMs: 4},
	)
	agg := New(m, Config{})

	board, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("all time: %v", err)
	}
	if board.Partial {
		t.Error("board marked partial on a fully scanned stream")
	}
	if len(board.Entries) != 2 {
		t.Fatalf("entries = %d, want 2 (carol has no successful run)", len(board.Entries))
	}

	// Both reach room 5; bob's 90 best gems beat alice's 60 on the
	// tie-break. Per-address bests keep the max of each field independently.
	if board.Entries[0].Address != "bob" || board.Entries[1].Address != "alice" {
		t.Fatalf("order = %s, %s; want bob, alice", board.Entries[0].Address, board.Entries[1].Address)
	}
	alice := board.Entries[1]
	if alice.BestRoomsCleared != 5 || alice.BestGemsCollected != 60 {
		t.Errorf("alice bests = %d rooms, %d gems; want 5, 60", alice.BestRoomsCleared, alice.BestGemsCollected)
	}
	if alice.TotalRuns != 2 || alice.SuccessfulRuns != 2 {
		t.Errorf("alice totals = %d/%d, want 2/2", alice.SuccessfulRuns, alice.TotalRuns)
	}
}

func TestAllTimeAddressTieBreakIsTotal(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(10,
		ledger.RunCompletedEvent{Address: "zed", Success: true, RoomsReached: 2, GemsCollected: 10, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "amy", Success: true, RoomsReached: 2, GemsCollected: 10, TimestampMs: 2},
	)
	agg := New(m, Config{})

	board, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("all time: %v", err)
	}
	if board.Entries[0].Address != "amy" {
		t.Errorf("first = %s, want amy (address ascending breaks full ties)", board.Entries[0].Address)
	}
}

func TestAggregationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(2,
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 4, GemsCollected: 30, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "bob", Success: true, RoomsReached: 2, GemsCollected: 50, TimestampMs: 2},
		ledger.RunCompletedEvent{Address: "alice", Success: false, RoomsReached: 6, GemsCollected: 5, TimestampMs: 3},
	)
	agg := New(m, Config{})

	first, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replaying the same stream produced different boards:\n%+v\n%+v", first, second)
	}
}

func TestPageCapYieldsPartialBoard(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(1,
		ledger.RunCompletedEvent{Address: "a", Success: true, RoomsReached: 1, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "b", Success: true, RoomsReached: 2, TimestampMs: 2},
		ledger.RunCompletedEvent{Address: "c", Success: true, RoomsReached: 3, TimestampMs: 3},
	)
	agg := New(m, Config{PageCap: 2})

	board, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("all time: %v", err)
	}
	if !board.Partial {
		t.Error("board not marked partial at the page cap")
	}
	if board.ScannedPages != 2 {
		t.Errorf("scanned pages = %d, want 2", board.ScannedPages)
	}
	// Newest-first: the cap sees c and b, never a.
	if len(board.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(board.Entries))
	}
}

func TestMidScanFailureReturnsEmptyBoard(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(1,
		ledger.RunCompletedEvent{Address: "a", Success: true, RoomsReached: 1, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "b", Success: true, RoomsReached: 2, TimestampMs: 2},
	)
	m.FailQuery = errors.New("node down")
	m.FailQueryPage = 1

	agg := New(m, Config{})
	board, err := agg.AllTime(ctx)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if len(board.Entries) != 0 {
		t.Errorf("entries = %d, want 0 (no partial-looking board on failure)", len(board.Entries))
	}
}

func TestMalformedEventsSkipped(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(10,
		ledger.RunCompletedEvent{Address: "a", Success: true, RoomsReached: 2, TimestampMs: 1},
		ledger.RunCompletedEvent{Address: "", Success: true, RoomsReached: 3, TimestampMs: 2},
		ledger.RunCompletedEvent{Address: "b", Success: true, RoomsReached: -1, TimestampMs: 3},
	)
	agg := New(m, Config{})

	board, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("all time: %v", err)
	}
	if board.SkippedEvents != 2 {
		t.Errorf("skipped = %d, want 2", board.SkippedEvents)
	}
	if len(board.Entries) != 1 || board.Entries[0].Address != "a" {
		t.Errorf("entries = %+v, want only a", board.Entries)
	}
}

func TestCancelledContextStopsScan(t *testing.T) {
	m := stagedLedger(1,
		ledger.RunCompletedEvent{Address: "a", Success: true, RoomsReached: 1, TimestampMs: 1},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := New(m, Config{})
	if _, err := agg.AllTime(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWindowFor(t *testing.T) {
	anchor := ledger.WeekAnchor{CurrentWeek: 3, WeekStartMs: anchorStart}

	current := WindowFor(anchor, 3)
	if current.EndMs != anchorStart || current.StartMs != anchorStart-WeekMs {
		t.Errorf("current window = [%d, %d), want [%d, %d)",
			current.StartMs, current.EndMs, anchorStart-WeekMs, anchorStart)
	}

	previous := WindowFor(anchor, 2)
	if previous.EndMs != anchorStart-WeekMs || previous.StartMs != anchorStart-2*WeekMs {
		t.Errorf("previous window = [%d, %d)", previous.StartMs, previous.EndMs)
	}
}

func TestWindowBoundariesHalfOpen(t *testing.T) {
	w := Window{StartMs: 1000, EndMs: 2000}
	tests := []struct {
		ts   int64
		want bool
	}{
		{999, false},
		{1000, true},
		{1001, true},
		{1999, true},
		{2000, false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.ts); got != tt.want {
			t.Errorf("Contains(%d) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}

func TestWeeklyRanksByGems(t *testing.T) {
	ctx := context.Background()
	inWindow := anchorStart - WeekMs/2
	m := stagedLedger(10,
		// Depth does not matter on the weekly board, score does.
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 9, GemsCollected: 20, TimestampMs: inWindow},
		ledger.RunCompletedEvent{Address: "bob", Success: false, RoomsReached: 2, GemsCollected: 70, TimestampMs: inWindow + 1},
		// Outside the window entirely.
		ledger.RunCompletedEvent{Address: "carol", Success: true, RoomsReached: 5, GemsCollected: 99, TimestampMs: anchorStart},
		ledger.RunCompletedEvent{Address: "dave", Success: true, RoomsReached: 5, GemsCollected: 99, TimestampMs: anchorStart - WeekMs - 1},
	)
	agg := New(m, Config{})

	board, err := agg.Weekly(ctx, 3)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Fatalf("entries = %d, want 2 (carol and dave fall outside the window)", len(board.Entries))
	}
	if board.Entries[0].Address != "bob" {
		t.Errorf("first = %s, want bob (70 gems beat 20)", board.Entries[0].Address)
	}
	if board.Entries[0].SuccessfulRuns != 0 {
		t.Errorf("bob in-window successes = %d, want 0", board.Entries[0].SuccessfulRuns)
	}
	if board.Entries[1].SuccessfulRuns != 1 {
		t.Errorf("alice in-window successes = %d, want 1", board.Entries[1].SuccessfulRuns)
	}
}

func TestWeeklyDefaultsToCurrentWeek(t *testing.T) {
	ctx := context.Background()
	inWindow := anchorStart - WeekMs/2
	m := stagedLedger(10,
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 1, GemsCollected: 5, TimestampMs: inWindow},
	)
	agg := New(m, Config{})

	board, err := agg.Weekly(ctx, 0)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(board.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(board.Entries))
	}

	current, err := agg.WeeklyCurrent(ctx)
	if err != nil {
		t.Fatalf("weekly current: %v", err)
	}
	if !reflect.DeepEqual(current.Entries, board.Entries) {
		t.Errorf("current week board = %+v, want %+v", current.Entries, board.Entries)
	}
}

func TestPlayerWeeklyBest(t *testing.T) {
	ctx := context.Background()
	inWindow := anchorStart - WeekMs/2
	m := stagedLedger(10,
		ledger.RunCompletedEvent{Address: "alice", Success: true, RoomsReached: 4, GemsCollected: 20, TimestampMs: inWindow},
		ledger.RunCompletedEvent{Address: "alice", Success: false, RoomsReached: 2, GemsCollected: 35, TimestampMs: inWindow + 1},
		ledger.RunCompletedEvent{Address: "bob", Success: true, RoomsReached: 8, GemsCollected: 99, TimestampMs: inWindow + 2},
	)
	agg := New(m, Config{})

	best, err := agg.PlayerWeeklyBest(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("weekly best: %v", err)
	}
	if best.Gems != 35 || best.Rooms != 2 {
		t.Errorf("best = %+v, want 35 gems in 2 rooms", best)
	}

	none, err := agg.PlayerWeeklyBest(ctx, "nobody", 3)
	if err != nil {
		t.Fatalf("weekly best: %v", err)
	}
	if none.Gems != 0 || none.Rooms != 0 {
		t.Errorf("best for unknown address = %+v, want zero value", none)
	}
}

func TestTopLimitsBoardSize(t *testing.T) {
	ctx := context.Background()
	m := stagedLedger(50)
	for i := 0; i < 15; i++ {
		m.Append(ledger.RunCompletedEvent{
			Address:      string(rune('a' + i)),
			Success:      true,
			RoomsReached: i + 1,
			TimestampMs:  int64(i + 1),
		})
	}
	agg := New(m, Config{Top: 10})

	board, err := agg.AllTime(ctx)
	if err != nil {
		t.Fatalf("all time: %v", err)
	}
	if len(board.Entries) != 10 {
		t.Errorf("entries = %d, want 10", len(board.Entries))
	}
	if board.Entries[0].BestRoomsCleared != 15 {
		t.Errorf("top entry rooms = %d, want 15", board.Entries[0].BestRoomsCleared)
	}
}
