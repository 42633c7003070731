// Package leaderboard reconstructs player rankings by replaying the
// ledger's append-only completed-run event stream. Nothing is persisted:
// every query scans the stream through the ledger client's paginated
// cursor, bounded by a page cap so a growing ledger cannot make a query
// unbounded.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aventurer-games/dungeon-core-go/internal/ledger"
)

// ErrLedgerUnavailable wraps a ledger failure mid-pagination. The board
// returned alongside it is empty, never partial-looking-complete.
var ErrLedgerUnavailable = errors.New("leaderboard: ledger unavailable")

// Config bounds a scan. Zero values take the documented defaults.
type Config struct {
	// PageCap is the maximum number of event pages fetched per query.
	// Hitting it yields a Partial board, not an error. Default 50.
	PageCap int

	// Top is the board size. Default 10.
	Top int

	// EnrichWorkers bounds the concurrent per-player lifetime-totals
	// lookups on the all-time board. Default 4.
	EnrichWorkers int
}

func (c Config) withDefaults() Config {
	if c.PageCap <= 0 {
		c.PageCap = 50
	}
	if c.Top <= 0 {
		c.Top = 10
	}
	if c.EnrichWorkers <= 0 {
		c.EnrichWorkers = 4
	}
	return c
}

// Entry is one ranked row. It is derived per query; the wallet address is
// its only identity.
type Entry struct {
	Address           string `json:"address"`
	BestRoomsCleared  int    `json:"bestRoomsCleared"`
	BestGemsCollected int    `json:"bestGemsCollected"`
	SuccessfulRuns    int    `json:"successfulRuns"`
	TotalRuns         int    `json:"totalRuns"`
}

// Board is a ranked table plus the scan's health indicators.
type Board struct {
	Entries []Entry `json:"entries"`
	// Partial is set when the page cap stopped the scan before the stream
	// was exhausted. A bounded approximate board beats an unbounded scan.
	Partial       bool `json:"partial,omitempty"`
	ScannedPages  int  `json:"scannedPages"`
	SkippedEvents int  `json:"skippedEvents,omitempty"`
}

// WeeklyBest is a player's best single run inside a week window.
type WeeklyBest struct {
	Gems  int `json:"gems"`
	Rooms int `json:"rooms"`
}

// Aggregator computes boards from the ledger event stream. It is stateless
// per invocation; concurrent queries share nothing.
type Aggregator struct {
	client ledger.Client
	cfg    Config
}

// New creates an aggregator over the given ledger client.
func New(client ledger.Client, cfg Config) *Aggregator {
	return &Aggregator{client: client, cfg: cfg.withDefaults()}
}

// scanStats carries the bookkeeping every scan reports.
type scanStats struct {
	pages   int
	skipped int
	partial bool
}

// scan walks the event stream newest-first, invoking visit for every
// well-formed event, until the stream ends, the page cap hits, or ctx is
// cancelled. A client failure aborts the whole scan.
func (a *Aggregator) scan(ctx context.Context, visit func(ledger.RunCompletedEvent)) (scanStats, error) {
	var stats scanStats
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if stats.pages >= a.cfg.PageCap {
			stats.partial = true
			return stats, nil
		}

		page, err := a.client.QueryRunCompletedEvents(ctx, cursor)
		if err != nil {
			return stats, fmt.Errorf("%w: page %d: %v", ErrLedgerUnavailable, stats.pages, err)
		}
		stats.pages++

		for _, ev := range page.Events {
			if !ev.Valid() {
				stats.skipped++
				continue
			}
			visit(ev)
		}

		if !page.HasMore {
			return stats, nil
		}
		cursor = page.NextCursor
	}
}

// AllTime computes the all-time board: per-address best rooms cleared over
// successful runs, enriched with lifetime totals, ranked by
// (rooms, gems, successful runs) descending with address as the final
// tie-break so the order is total.
func (a *Aggregator) AllTime(ctx context.Context) (Board, error) {
	type best struct {
		rooms int
		gems  int
	}
	bests := make(map[string]best)

	stats, err := a.scan(ctx, func(ev ledger.RunCompletedEvent) {
		if !ev.Success {
			return
		}
		b := bests[ev.Address]
		if ev.RoomsReached > b.rooms {
			b.rooms = ev.RoomsReached
		}
		if ev.GemsCollected > b.gems {
			b.gems = ev.GemsCollected
		}
		bests[ev.Address] = b
	})
	if err != nil {
		return Board{}, err
	}

	entries := make([]Entry, 0, len(bests))
	for addr, b := range bests {
		if b.rooms == 0 {
			continue
		}
		entries = append(entries, Entry{
			Address:           addr,
			BestRoomsCleared:  b.rooms,
			BestGemsCollected: b.gems,
		})
	}

	if err := a.enrich(ctx, entries); err != nil {
		return Board{}, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestRoomsCleared != entries[j].BestRoomsCleared {
			return entries[i].BestRoomsCleared > entries[j].BestRoomsCleared
		}
		if entries[i].BestGemsCollected != entries[j].BestGemsCollected {
			return entries[i].BestGemsCollected > entries[j].BestGemsCollected
		}
		if entries[i].SuccessfulRuns != entries[j].SuccessfulRuns {
			return entries[i].SuccessfulRuns > entries[j].SuccessfulRuns
		}
		return entries[i].Address < entries[j].Address
	})
	if len(entries) > a.cfg.Top {
		entries = entries[:a.cfg.Top]
	}

	return Board{
		Entries:       entries,
		Partial:       stats.partial,
		ScannedPages:  stats.pages,
		SkippedEvents: stats.skipped,
	}, nil
}

// enrich fills lifetime totals for each entry with a bounded number of
// concurrent lookups. The lookups have no ordering dependency.
func (a *Aggregator) enrich(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sem := make(chan struct{}, a.cfg.EnrichWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range entries {
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			totals, err := a.client.QueryPlayerLifetimeTotals(ctx, e.Address)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%w: totals for %s: %v", ErrLedgerUnavailable, e.Address, err)
				}
				mu.Unlock()
				return
			}
			e.SuccessfulRuns = totals.SuccessfulRuns
			e.TotalRuns = totals.TotalRuns
		}(&entries[i])
	}
	wg.Wait()
	return firstErr
}

// Weekly computes the board for the given week number; week <= 0 means the
// current week. Weekly ranking uses score, not depth: the per-address best
// single run by (gems, rooms) inside the window, ranked by
// (gems, rooms, in-window successful runs) descending, address ascending.
func (a *Aggregator) Weekly(ctx context.Context, week int) (Board, error) {
	anchor, err := a.client.QueryWeekAnchor(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("%w: week anchor: %v", ErrLedgerUnavailable, err)
	}
	if week <= 0 {
		week = anchor.CurrentWeek
	}
	window := WindowFor(anchor, week)

	type tally struct {
		best      WeeklyBest
		successes int
		runs      int
	}
	tallies := make(map[string]tally)

	stats, err := a.scan(ctx, func(ev ledger.RunCompletedEvent) {
		if !window.Contains(ev.TimestampMs) {
			return
		}
		t := tallies[ev.Address]
		t.runs++
		if ev.Success {
			t.successes++
		}
		if ev.GemsCollected > t.best.Gems ||
			(ev.GemsCollected == t.best.Gems && ev.RoomsReached > t.best.Rooms) {
			t.best = WeeklyBest{Gems: ev.GemsCollected, Rooms: ev.RoomsReached}
		}
		tallies[ev.Address] = t
	})
	if err != nil {
		return Board{}, err
	}

	entries := make([]Entry, 0, len(tallies))
	for addr, t := range tallies {
		entries = append(entries, Entry{
			Address:           addr,
			BestRoomsCleared:  t.best.Rooms,
			BestGemsCollected: t.best.Gems,
			SuccessfulRuns:    t.successes,
			TotalRuns:         t.runs,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestGemsCollected != entries[j].BestGemsCollected {
			return entries[i].BestGemsCollected > entries[j].BestGemsCollected
		}
		if entries[i].BestRoomsCleared != entries[j].BestRoomsCleared {
			return entries[i].BestRoomsCleared > entries[j].BestRoomsCleared
		}
		if entries[i].SuccessfulRuns != entries[j].SuccessfulRuns {
			return entries[i].SuccessfulRuns > entries[j].SuccessfulRuns
		}
		return entries[i].Address < entries[j].Address
	})
	if len(entries) > a.cfg.Top {
		entries = entries[:a.cfg.Top]
	}

	return Board{
		Entries:       entries,
		Partial:       stats.partial,
		ScannedPages:  stats.pages,
		SkippedEvents: stats.skipped,
	}, nil
}

// WeeklyCurrent computes the board for the ledger's current week.
func (a *Aggregator) WeeklyCurrent(ctx context.Context) (Board, error) {
	return a.Weekly(ctx, 0)
}

// PlayerWeeklyBest returns the best single in-window run for one address,
// or the zero value when no qualifying event exists.
func (a *Aggregator) PlayerWeeklyBest(ctx context.Context, address string, week int) (WeeklyBest, error) {
	anchor, err := a.client.QueryWeekAnchor(ctx)
	if err != nil {
		return WeeklyBest{}, fmt.Errorf("%w: week anchor: %v", ErrLedgerUnavailable, err)
	}
	if week <= 0 {
		week = anchor.CurrentWeek
	}
	window := WindowFor(anchor, week)

	var best WeeklyBest
	_, err = a.scan(ctx, func(ev ledger.RunCompletedEvent) {
		if ev.Address != address || !window.Contains(ev.TimestampMs) {
			return
		}
		if ev.GemsCollected > best.Gems ||
			(ev.GemsCollected == best.Gems && ev.RoomsReached > best.Rooms) {
			best = WeeklyBest{Gems: ev.GemsCollected, Rooms: ev.RoomsReached}
		}
	})
	if err != nil {
		return WeeklyBest{}, err
	}
	return best, nil
}
