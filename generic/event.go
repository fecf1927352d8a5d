package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIFECYCLE EVENTS
// =============================================================================

// EventKind is the closed set of lifecycle event kinds. The engine switches
// over it exhaustively; a new kind needs a new case there.
type EventKind string

const (
	EventHired              EventKind = "hired"
	EventContractEnd        EventKind = "contract_end"
	EventWorkContractChange EventKind = "work_contract_change"
	EventMarriage           EventKind = "marriage"
	EventDivorce            EventKind = "divorce"
	EventBirth              EventKind = "birth"
	EventOther              EventKind = "other"
)

// EventKinds lists every kind, in declaration order.
var EventKinds = []EventKind{
	EventHired, EventContractEnd, EventWorkContractChange,
	EventMarriage, EventDivorce, EventBirth, EventOther,
}

func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is an immutable record of something that happened to an employee.
// Only LinkedIntervalID is ever written back, by the engine.
type Event struct {
	ID          EventID
	AccountID   AccountID
	EmployeeID  EmployeeID
	Kind        EventKind
	EffectiveAt TimePoint
	Seq         int64 // creation order, assigned by the store

	// Hire carries optional initial assignments for EventHired.
	Hire *HirePayload

	// OccupationRate is the new rate for EventWorkContractChange.
	OccupationRate *decimal.Decimal

	LinkedIntervalID IntervalID
}

// HirePayload lists the assignments to open on a hire date.
type HirePayload struct {
	WorkingPlaceID   PolicyID
	PresencePolicyID PolicyID
	TimeOffPolicyIDs []PolicyID
	OccupationRate   *decimal.Decimal
}

// IsEmpty reports a payload that assigns nothing.
func (h *HirePayload) IsEmpty() bool {
	return h == nil || (h.WorkingPlaceID == "" && h.PresencePolicyID == "" && len(h.TimeOffPolicyIDs) == 0)
}

// EventLess orders events by effective date, breaking ties by creation order.
func EventLess(a, b Event) bool {
	if !a.EffectiveAt.Equal(b.EffectiveAt) {
		return a.EffectiveAt.Before(b.EffectiveAt)
	}
	return a.Seq < b.Seq
}

// SortEvents sorts events in place in lifecycle order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool { return EventLess(events[i], events[j]) })
}

// ContractEndBoundary is the date at which assignments are closed for a
// contract end effective at date.
func ContractEndBoundary(date TimePoint) TimePoint {
	return date.Date().AddDays(-1)
}

// =============================================================================
// EMPLOYMENT STATE - Derived from the ordered event history
// =============================================================================

type EmploymentState string

const (
	StateUnemployed EmploymentState = "unemployed"
	StateEmployed   EmploymentState = "employed"
)

// StateBefore returns the employment state event finds: the state entered by
// the latest hired/contract_end event ordered before it. The event itself is
// ignored, so the check holds when a stored event is replayed.
func StateBefore(events []Event, event Event) EmploymentState {
	state := StateUnemployed
	for _, e := range sortedCopy(events) {
		if e.ID == event.ID {
			continue
		}
		if !EventLess(e, event) {
			break
		}
		switch e.Kind {
		case EventHired:
			state = StateEmployed
		case EventContractEnd:
			state = StateUnemployed
		}
	}
	return state
}

// FirstHireDate returns the earliest hire date, if any.
func FirstHireDate(events []Event) (TimePoint, bool) {
	for _, e := range sortedCopy(events) {
		if e.Kind == EventHired {
			return e.EffectiveAt, true
		}
	}
	return TimePoint{}, false
}

// NextHireAfter returns the first hire event ordered after the given event.
func NextHireAfter(events []Event, after Event) (Event, bool) {
	for _, e := range sortedCopy(events) {
		if e.Kind == EventHired && EventLess(after, e) {
			return e, true
		}
	}
	return Event{}, false
}

// UnemploymentPeriods derives every gap opened by a contract end.
func UnemploymentPeriods(events []Event) []UnemploymentPeriod {
	var periods []UnemploymentPeriod
	for _, e := range sortedCopy(events) {
		if e.Kind != EventContractEnd {
			continue
		}
		periods = append(periods, UnemploymentPeriodFor(events, e))
	}
	return periods
}

// UnemploymentPeriodFor returns the gap opened by the given contract end.
func UnemploymentPeriodFor(events []Event, contractEnd Event) UnemploymentPeriod {
	period := UnemploymentPeriod{Start: ContractEndBoundary(contractEnd.EffectiveAt), ContractEndID: contractEnd.ID}
	if hire, ok := NextHireAfter(events, contractEnd); ok {
		end := hire.EffectiveAt.Date()
		period.End = &end
	}
	return period
}

func sortedCopy(events []Event) []Event {
	out := append([]Event(nil), events...)
	SortEvents(out)
	return out
}
