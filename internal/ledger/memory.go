package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Client used by the simulator and by tests. It
// keeps the append-only event stream in memory and serves it newest-first in
// fixed-size pages, the same shape a real node produces.
type Memory struct {
	mu       sync.Mutex
	events   []RunCompletedEvent
	open     map[RunHandle]openRun
	advances map[RunHandle]int
	totals   map[string]LifetimeTotals
	anchor   WeekAnchor
	pageSize int

	// Address is stamped on events submitted through this client.
	Address string

	// Failure injection. When set, the named operation returns the error.
	FailStartRun error
	FailAdvance  error
	FailEndRun   error
	FailQuery    error
	// FailQueryPage is the 0-based page index at which FailQuery fires;
	// negative means the first page.
	FailQueryPage int

	// NowMs supplies event timestamps; defaults to wall clock.
	NowMs func() int64
}

type openRun struct {
	address string
	hp      int
}

// NewMemory creates an in-memory ledger with the given event page size.
func NewMemory(pageSize int) *Memory {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Memory{
		open:          make(map[RunHandle]openRun),
		advances:      make(map[RunHandle]int),
		totals:        make(map[string]LifetimeTotals),
		anchor:        WeekAnchor{CurrentWeek: 1, WeekStartMs: time.Now().UnixMilli()},
		pageSize:      pageSize,
		Address:       "wallet:local",
		FailQueryPage: -1,
	}
}

var _ Client = (*Memory)(nil)

// SetWeekAnchor pins the week arithmetic for tests.
func (m *Memory) SetWeekAnchor(a WeekAnchor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchor = a
}

// Append adds completed-run events directly to the stream, bypassing the
// run lifecycle. Tests use this to stage histories.
func (m *Memory) Append(events ...RunCompletedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events = append(m.events, e)
		m.bumpTotals(e.Address, e.Success)
	}
}

// EventCount returns the current stream length.
func (m *Memory) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *Memory) bumpTotals(address string, success bool) {
	t := m.totals[address]
	t.TotalRuns++
	if success {
		t.SuccessfulRuns++
	}
	m.totals[address] = t
}

func (m *Memory) now() int64 {
	if m.NowMs != nil {
		return m.NowMs()
	}
	return time.Now().UnixMilli()
}

// SubmitStartRun charges the (notional) entry fee and opens a run record.
func (m *Memory) SubmitStartRun(ctx context.Context, baselineHP, baselineAtk int) (RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStartRun != nil {
		return "", m.FailStartRun
	}
	handle := RunHandle(uuid.NewString())
	m.open[handle] = openRun{address: m.Address, hp: baselineHP}
	return handle, nil
}

// SubmitAdvanceRoom updates the open run's HP and bumps its room count.
func (m *Memory) SubmitAdvanceRoom(ctx context.Context, handle RunHandle, newHP int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdvance != nil {
		return m.FailAdvance
	}
	run, ok := m.open[handle]
	if !ok {
		return &APIError{ErrorType: ErrTypeRunNotFound, Message: string(handle)}
	}
	run.hp = newHP
	m.open[handle] = run
	m.advances[handle]++
	return nil
}

// SubmitEndRun closes the run and appends its completed-run event. Rooms
// reached is the advance count plus the starting room, the same derivation
// the node performs.
func (m *Memory) SubmitEndRun(ctx context.Context, handle RunHandle, survived bool, gemsCollected int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEndRun != nil {
		return m.FailEndRun
	}
	run, ok := m.open[handle]
	if !ok {
		return &APIError{ErrorType: ErrTypeRunAlreadyClosed, Message: string(handle)}
	}
	delete(m.open, handle)
	rooms := m.advances[handle] + 1
	delete(m.advances, handle)

	m.events = append(m.events, RunCompletedEvent{
		Address:       run.address,
		Success:       survived,
		RoomsReached:  rooms,
		GemsCollected: gemsCollected,
		TimestampMs:   m.now(),
	})
	m.bumpTotals(run.address, survived)
	return nil
}

// QueryRunCompletedEvents serves the stream newest-first in fixed pages.
// The cursor is the stringified offset into the reversed stream.
func (m *Memory) QueryRunCompletedEvents(ctx context.Context, cursor string) (EventPage, error) {
	if err := ctx.Err(); err != nil {
		return EventPage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return EventPage{}, fmt.Errorf("ledger: malformed cursor %q", cursor)
		}
		offset = n
	}

	if m.FailQuery != nil {
		page := offset / m.pageSize
		failAt := m.FailQueryPage
		if failAt < 0 {
			failAt = 0
		}
		if page >= failAt {
			return EventPage{}, m.FailQuery
		}
	}

	total := len(m.events)
	out := EventPage{}
	for i := 0; i < m.pageSize; i++ {
		idx := total - 1 - offset - i
		if idx < 0 {
			break
		}
		out.Events = append(out.Events, m.events[idx])
	}
	consumed := offset + len(out.Events)
	if consumed < total {
		out.HasMore = true
		out.NextCursor = strconv.Itoa(consumed)
	}
	return out, nil
}

// QueryWeekAnchor returns the pinned week anchor.
func (m *Memory) QueryWeekAnchor(ctx context.Context) (WeekAnchor, error) {
	if err := ctx.Err(); err != nil {
		return WeekAnchor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anchor, nil
}

// QueryPlayerLifetimeTotals returns the per-player counters.
func (m *Memory) QueryPlayerLifetimeTotals(ctx context.Context, address string) (LifetimeTotals, error) {
	if err := ctx.Err(); err != nil {
		return LifetimeTotals{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[address], nil
}
