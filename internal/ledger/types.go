// Package ledger defines the boundary to the external system of record for
// entry fees, run lifecycle transactions, and completed-run events. The game
// core only ever sees this interface; the ledger's own authorization and
// accounting rules are out of scope.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// RunHandle is the opaque identifier of an open run record on the ledger.
type RunHandle string

// RunCompletedEvent is one append-only "run completed" event. The stream is
// totally ordered by ledger-assigned sequence and may be served in
// reverse-chronological pages.
type RunCompletedEvent struct {
	Address       string `json:"address"`
	Success       bool   `json:"success"`
	RoomsReached  int    `json:"roomsReached"`
	GemsCollected int    `json:"gemsCollected"`
	TimestampMs   int64  `json:"timestampMs"`
}

// Valid reports whether the event carries the fields aggregation requires.
// Events failing this check are skipped and counted, never fatal.
func (e RunCompletedEvent) Valid() bool {
	return e.Address != "" && e.RoomsReached >= 0 && e.GemsCollected >= 0
}

// EventPage is one page of the completed-run event stream.
type EventPage struct {
	Events     []RunCompletedEvent `json:"events"`
	NextCursor string              `json:"nextCursor"`
	HasMore    bool                `json:"hasMore"`
}

// WeekAnchor pins the rotating leaderboard's week arithmetic: the current
// week number and the wall-clock start of that week.
type WeekAnchor struct {
	CurrentWeek int   `json:"currentWeek"`
	WeekStartMs int64 `json:"weekStartTimestampMs"`
}

// LifetimeTotals are the per-player aggregate counters the ledger maintains.
type LifetimeTotals struct {
	TotalRuns      int `json:"totalRuns"`
	SuccessfulRuns int `json:"successfulRuns"`
}

// DefaultEntryFee is the run entry fee in ledger base units (0.01 of the
// native coin at 1e9 base units per coin).
var DefaultEntryFee = decimal.NewFromInt(10_000_000)

// Client is the ledger boundary. Submits are transactional and may fail;
// queries are read-only. All calls honor context cancellation.
type Client interface {
	// SubmitStartRun charges the entry fee and creates a run record.
	SubmitStartRun(ctx context.Context, baselineHP, baselineAtk int) (RunHandle, error)
	// SubmitAdvanceRoom mutates the open run record with the surviving HP.
	SubmitAdvanceRoom(ctx context.Context, handle RunHandle, newHP int) error
	// SubmitEndRun closes the run record and emits the completed-run event.
	SubmitEndRun(ctx context.Context, handle RunHandle, survived bool, gemsCollected int) error
	// QueryRunCompletedEvents returns a page of the event stream. An empty
	// cursor starts from the newest events.
	QueryRunCompletedEvents(ctx context.Context, cursor string) (EventPage, error)
	// QueryWeekAnchor returns the current week number and its start time.
	QueryWeekAnchor(ctx context.Context) (WeekAnchor, error)
	// QueryPlayerLifetimeTotals returns the ledger's per-player aggregates.
	QueryPlayerLifetimeTotals(ctx context.Context, address string) (LifetimeTotals, error)
}
