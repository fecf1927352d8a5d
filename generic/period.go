package generic

import "time"

// =============================================================================
// WINDOW - Half-open date range [From, To)
// =============================================================================

// Window is a half-open range of calendar dates. A nil To means the window is
// unbounded on the right.
type Window struct {
	From TimePoint
	To   *TimePoint
}

// Contains returns true if t lies in [From, To).
func (w Window) Contains(t TimePoint) bool {
	if t.Before(w.From) {
		return false
	}
	return w.To == nil || t.Before(*w.To)
}

// Overlaps returns true when the two windows share at least one instant.
func (w Window) Overlaps(other Window) bool {
	if w.To != nil && !other.From.Before(*w.To) {
		return false
	}
	if other.To != nil && !w.From.Before(*other.To) {
		return false
	}
	return true
}

// IsEmpty reports a zero-length window.
func (w Window) IsEmpty() bool {
	return w.To != nil && !w.From.Before(*w.To)
}

func (w Window) String() string {
	if w.To == nil {
		return "[" + w.From.String() + ", ∞)"
	}
	return "[" + w.From.String() + ", " + w.To.String() + ")"
}

// =============================================================================
// UNEMPLOYMENT PERIOD - Derived from contract_end / hired event pairs
// =============================================================================

// UnemploymentPeriod is the gap opened by a contract end. Start is the
// boundary at which assignments are closed (the day before the contract-end
// date); End is the next hire date, or nil when the employee was not rehired.
type UnemploymentPeriod struct {
	Start         TimePoint
	End           *TimePoint
	ContractEndID EventID
}

func (u UnemploymentPeriod) Window() Window { return Window{From: u.Start, To: u.End} }

// Contains returns true if date falls inside the gap.
func (u UnemploymentPeriod) Contains(date TimePoint) bool { return u.Window().Contains(date) }

// IsOpenEnded reports whether the gap is still open (no later hire).
func (u UnemploymentPeriod) IsOpenEnded() bool { return u.End == nil }

// =============================================================================
// CYCLE - Accrual cycle anchored on a policy start day/month
// =============================================================================

// Cycle is the yearly accrual cycle of a time-off policy.
type Cycle struct {
	StartDay   int
	StartMonth time.Month
}

// AnniversaryIn returns the cycle start inside the given calendar year.
// A 29 February anchor falls on 1 March in non-leap years.
func (c Cycle) AnniversaryIn(year int) TimePoint {
	return DateOf(time.Date(year, c.StartMonth, c.StartDay, 0, 0, 0, 0, time.UTC))
}

// NextAfter returns the first cycle start strictly after date.
func (c Cycle) NextAfter(date TimePoint) TimePoint {
	candidate := c.AnniversaryIn(date.Year())
	if candidate.After(date) {
		return candidate
	}
	return c.AnniversaryIn(date.Year() + 1)
}

// StartsBetween returns all cycle starts strictly after from and strictly
// before to (nil = no upper bound) that are not after limit.
func (c Cycle) StartsBetween(from TimePoint, to *TimePoint, limit TimePoint) []TimePoint {
	var starts []TimePoint
	for next := c.NextAfter(from); next.BeforeOrEqual(limit); next = c.NextAfter(next) {
		if to != nil && !next.Before(*to) {
			break
		}
		starts = append(starts, next)
	}
	return starts
}
