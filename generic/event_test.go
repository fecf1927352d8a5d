package generic_test

import (
	"testing"
	"time"

	"github.com/warp/employment-engine/generic"
)

func lifecycle() []generic.Event {
	return []generic.Event{
		{ID: "rehire", Kind: generic.EventHired, EffectiveAt: date("2025-01-15"), Seq: 3},
		{ID: "hire", Kind: generic.EventHired, EffectiveAt: date("2024-03-01"), Seq: 1},
		{ID: "end", Kind: generic.EventContractEnd, EffectiveAt: date("2024-09-01"), Seq: 2},
		{ID: "wedding", Kind: generic.EventMarriage, EffectiveAt: date("2024-06-10"), Seq: 4},
	}
}

func TestStateBefore(t *testing.T) {
	events := lifecycle()

	tests := []struct {
		name  string
		event generic.Event
		want  generic.EmploymentState
	}{
		{"first hire", events[1], generic.StateUnemployed},
		{"contract end", events[2], generic.StateEmployed},
		{"rehire", events[0], generic.StateUnemployed},
		{"marriage while employed", events[3], generic.StateEmployed},
		{"second contract end after the first", generic.Event{ID: "end-2", Kind: generic.EventContractEnd, EffectiveAt: date("2024-10-01"), Seq: 5}, generic.StateUnemployed},
		{"same-day event ordered by seq", generic.Event{ID: "late", Kind: generic.EventHired, EffectiveAt: date("2024-09-01"), Seq: 9}, generic.StateUnemployed},
		{"after the rehire", generic.Event{ID: "end-3", Kind: generic.EventContractEnd, EffectiveAt: date("2025-06-01"), Seq: 6}, generic.StateEmployed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generic.StateBefore(events, tt.event); got != tt.want {
				t.Errorf("StateBefore(%s) = %s, want %s", tt.event.ID, got, tt.want)
			}
		})
	}
}

func TestUnemploymentPeriods(t *testing.T) {
	// GIVEN: hire, contract end on 2024-09-01, rehire on 2025-01-15
	periods := generic.UnemploymentPeriods(lifecycle())

	// THEN: one gap from the day before the contract end to the rehire
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	p := periods[0]
	if !p.Start.Equal(date("2024-08-31")) {
		t.Errorf("expected gap to start at 2024-08-31, got %s", p.Start)
	}
	if p.End == nil || !p.End.Equal(date("2025-01-15")) {
		t.Errorf("expected gap to end at 2025-01-15, got %v", p.End)
	}
	if p.ContractEndID != "end" {
		t.Errorf("expected gap linked to contract end, got %s", p.ContractEndID)
	}
	if !p.Contains(date("2024-10-01")) || p.Contains(date("2025-01-15")) {
		t.Error("gap must be half-open")
	}
}

func TestUnemploymentPeriods_OpenEnded(t *testing.T) {
	events := lifecycle()[1:3]
	periods := generic.UnemploymentPeriods(events)

	if len(periods) != 1 || !periods[0].IsOpenEnded() {
		t.Fatalf("expected one open-ended gap, got %+v", periods)
	}
}

func TestFirstHireDate(t *testing.T) {
	got, ok := generic.FirstHireDate(lifecycle())
	if !ok || !got.Equal(date("2024-03-01")) {
		t.Errorf("expected first hire 2024-03-01, got %s", got)
	}
	if _, ok := generic.FirstHireDate(nil); ok {
		t.Error("no events, no hire")
	}
}

func TestSortEvents_SameDayByCreationOrder(t *testing.T) {
	events := []generic.Event{
		{ID: "second", EffectiveAt: date("2024-03-01"), Seq: 2},
		{ID: "first", EffectiveAt: date("2024-03-01"), Seq: 1},
	}
	generic.SortEvents(events)
	if events[0].ID != "first" {
		t.Errorf("expected creation order on ties, got %s first", events[0].ID)
	}
}

// =============================================================================
// CYCLE
// =============================================================================

func TestCycle_StartsBetween(t *testing.T) {
	c := generic.Cycle{StartDay: 1, StartMonth: time.January}

	starts := c.StartsBetween(date("2024-03-01"), nil, date("2026-06-30"))
	if len(starts) != 2 {
		t.Fatalf("expected 2025-01-01 and 2026-01-01, got %v", starts)
	}
	if !starts[0].Equal(date("2025-01-01")) || !starts[1].Equal(date("2026-01-01")) {
		t.Errorf("unexpected starts %v", starts)
	}

	// The interval end is exclusive.
	starts = c.StartsBetween(date("2024-03-01"), till("2025-01-01"), date("2026-06-30"))
	if len(starts) != 0 {
		t.Errorf("expected no start before 2025-01-01, got %v", starts)
	}
}

func TestCycle_LeapDayAnchor(t *testing.T) {
	c := generic.Cycle{StartDay: 29, StartMonth: time.February}
	if got := c.AnniversaryIn(2025); !got.Equal(date("2025-03-01")) {
		t.Errorf("expected 2025-03-01 in a non-leap year, got %s", got)
	}
	if got := c.AnniversaryIn(2024); !got.Equal(date("2024-02-29")) {
		t.Errorf("expected 2024-02-29, got %s", got)
	}
}
