package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestRunLifecycleEmitsEvent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	m.NowMs = func() int64 { return 1000 }

	handle, err := m.SubmitStartRun(ctx, 4, 1)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if handle == "" {
		t.Fatal("empty run handle")
	}

	// Two advances plus the starting room gives three rooms reached.
	for i := 0; i < 2; i++ {
		if err := m.SubmitAdvanceRoom(ctx, handle, 3); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if err := m.SubmitEndRun(ctx, handle, true, 25); err != nil {
		t.Fatalf("end run: %v", err)
	}

	page, err := m.QueryRunCompletedEvents(ctx, "")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(page.Events))
	}
	ev := page.Events[0]
	if !ev.Success || ev.RoomsReached != 3 || ev.GemsCollected != 25 || ev.TimestampMs != 1000 {
		t.Errorf("event = %+v", ev)
	}

	totals, err := m.QueryPlayerLifetimeTotals(ctx, m.Address)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalRuns != 1 || totals.SuccessfulRuns != 1 {
		t.Errorf("totals = %+v, want 1/1", totals)
	}
}

func TestAdvanceUnknownHandle(t *testing.T) {
	m := NewMemory(10)
	err := m.SubmitAdvanceRoom(context.Background(), "nope", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRunNotFound() {
		t.Errorf("err = %v, want runNotFound APIError", err)
	}
}

func TestEndRunTwice(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	handle, err := m.SubmitStartRun(ctx, 4, 1)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := m.SubmitEndRun(ctx, handle, false, 0); err != nil {
		t.Fatalf("first end: %v", err)
	}
	err = m.SubmitEndRun(ctx, handle, false, 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRunAlreadyClosed() {
		t.Errorf("second end: err = %v, want runAlreadyClosed APIError", err)
	}
}

func TestPaginationNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for i := 1; i <= 5; i++ {
		m.Append(RunCompletedEvent{Address: "a", Success: true, RoomsReached: i, TimestampMs: int64(i)})
	}

	var rooms []int
	cursor := ""
	pages := 0
	for {
		page, err := m.QueryRunCompletedEvents(ctx, cursor)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		for _, ev := range page.Events {
			rooms = append(rooms, ev.RoomsReached)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	want := []int{5, 4, 3, 2, 1}
	if len(rooms) != len(want) {
		t.Fatalf("events = %v, want %v", rooms, want)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Errorf("position %d: rooms = %d, want %d", i, rooms[i], want[i])
		}
	}
}

func TestMalformedCursor(t *testing.T) {
	m := NewMemory(10)
	if _, err := m.QueryRunCompletedEvents(context.Background(), "not-a-number"); err == nil {
		t.Error("malformed cursor accepted")
	}
	if _, err := m.QueryRunCompletedEvents(context.Background(), "-3"); err == nil {
		t.Error("negative cursor accepted")
	}
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	m := NewMemory(2)
	for i := 0; i < 6; i++ {
		m.Append(RunCompletedEvent{Address: "a", RoomsReached: 1})
	}
	m.FailQuery = boom
	m.FailQueryPage = 1

	page, err := m.QueryRunCompletedEvents(ctx, "")
	if err != nil {
		t.Fatalf("first page should succeed: %v", err)
	}
	if _, err := m.QueryRunCompletedEvents(ctx, page.NextCursor); !errors.Is(err, boom) {
		t.Errorf("second page err = %v, want injected failure", err)
	}

	m2 := NewMemory(2)
	m2.FailStartRun = boom
	if _, err := m2.SubmitStartRun(ctx, 4, 1); !errors.Is(err, boom) {
		t.Errorf("start run err = %v, want injected failure", err)
	}
}

func TestEventValid(t *testing.T) {
	tests := []struct {
		name string
		ev   RunCompletedEvent
		want bool
	}{
		{"well formed", RunCompletedEvent{Address: "a", RoomsReached: 1}, true},
		{"missing address", RunCompletedEvent{RoomsReached: 1}, false},
		{"negative rooms", RunCompletedEvent{Address: "a", RoomsReached: -1}, false},
		{"negative gems", RunCompletedEvent{Address: "a", GemsCollected: -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
