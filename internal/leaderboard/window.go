package leaderboard

import "github.com/aventurer-games/dungeon-core-go/internal/ledger"

// WeekMs is the fixed week-window length.
const WeekMs = 7 * 24 * 60 * 60 * 1000

// Window is a half-open time interval [StartMs, EndMs) in ledger
// milliseconds.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Contains reports whether ts falls inside the window. The end bound is
// exclusive: an event stamped exactly at EndMs belongs to the next window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.StartMs && ts < w.EndMs
}

// WindowFor computes the scoring window for the given week number against
// the anchor. The window ends at the anchor start shifted back by the number
// of weeks between the current week and the requested one; scoring the
// current week therefore covers the last completed seven-day span, which is
// when its prizes settle.
func WindowFor(anchor ledger.WeekAnchor, week int) Window {
	end := anchor.WeekStartMs - int64(anchor.CurrentWeek-week)*WeekMs
	return Window{StartMs: end - WeekMs, EndMs: end}
}
