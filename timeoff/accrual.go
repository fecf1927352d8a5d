/*
accrual.go - Entries a time-off interval generates

PURPOSE:
  Replays the accrual rules of one time-off assignment interval into the
  ledger entries it implies. The Ledger deletes and re-inserts these on
  every recomputation, so the schedule must be a pure function of
  (interval, policy, predecessor, clock).

GENERATED ENTRIES:
  assignation:
    - On the effective start day of the interval
    - balancer: HiredProration, or WorkContractChangeProration when the
      previous interval of the category ends exactly where this one starts
    - counter: the flat allowance
  reset:
    - At each cycle anniversary, when the policy resets
    - Cancels the running balance (amount filled in by the Ledger)
  addition:
    - At each cycle anniversary strictly after the start, before the end
      of the interval and not after the clock
    - The full allowance

EFFECTIVE START:
  StartDayOrder 1 (or 0) starts accruing on the interval start. Order n
  starts on the (n-1)th cycle anniversary after it.

SAME-DAY ORDER:
  Entries on one calendar day are spread by fixed offsets so the ledger
  order is stable: reset, then addition, then assignation.

SEE ALSO:
  - proration.go: The arithmetic
  - ledger.go: Persists the schedule
*/
package timeoff

import (
	"fmt"
	"time"

	"github.com/warp/employment-engine/generic"
	"github.com/zeebo/xxh3"
)

const (
	offsetReset       = 0
	offsetAddition    = time.Second
	offsetAssignation = 2 * time.Second
)

// plannedEntry is a generated entry before its reset amount is known.
type plannedEntry struct {
	generic.Entry
}

// accrualSchedule generates the entries of one interval.
type accrualSchedule struct {
	interval generic.Interval
	policy   generic.TimeOffPolicy

	// previous is the allowance of the interval ending exactly at
	// interval.EffectiveAt, nil when there is none.
	previous *generic.Amount

	// limit bounds recurring entries (the engine clock).
	limit generic.TimePoint
}

// EffectiveStart returns the day accrual begins for iv under cycle.
func EffectiveStart(iv generic.Interval, cycle generic.Cycle) generic.TimePoint {
	start := iv.EffectiveAt.Date()
	for n := 1; n < iv.Order(); n++ {
		start = cycle.NextAfter(start)
	}
	return start
}

func (s accrualSchedule) entries() []plannedEntry {
	if !s.policy.Active {
		return nil
	}
	start := EffectiveStart(s.interval, s.policy.Cycle())
	if s.interval.EffectiveTill != nil && !start.Before(*s.interval.EffectiveTill) {
		return nil
	}
	allowance := s.policy.Allowance(s.interval.OccupationRate)

	out := []plannedEntry{s.entry(generic.BalanceAssignation, start.Add(offsetAssignation), s.assignation(allowance, start))}
	for _, at := range s.policy.Cycle().StartsBetween(start, s.interval.EffectiveTill, s.limit) {
		if s.policy.Reset {
			out = append(out, s.entry(generic.BalanceReset, at.Add(offsetReset), allowance.Zero()))
		}
		out = append(out, s.entry(generic.BalanceAddition, at.Add(offsetAddition), allowance))
	}
	return out
}

func (s accrualSchedule) assignation(allowance generic.Amount, start generic.TimePoint) generic.Amount {
	if s.policy.Type == generic.PolicyCounter {
		return allowance
	}
	if s.previous != nil {
		return WorkContractChangeProration(allowance, *s.previous, start)
	}
	return HiredProration(allowance, start)
}

func (s accrualSchedule) entry(bt generic.BalanceType, at generic.TimePoint, amount generic.Amount) plannedEntry {
	iv := s.interval
	return plannedEntry{generic.Entry{
		ID:          entryID(iv.EmployeeID, iv.CategoryID, bt, string(iv.ID), at),
		AccountID:   iv.AccountID,
		EmployeeID:  iv.EmployeeID,
		CategoryID:  iv.CategoryID,
		Type:        bt,
		Amount:      amount,
		EffectiveAt: at,
		EventID:     iv.EventID,
		IntervalID:  iv.ID,
		Reason:      fmt.Sprintf("%s %s", bt, s.policy.Name),
	}}
}

// entryID derives a stable ID so that replaying the same state yields the
// same rows.
func entryID(employeeID generic.EmployeeID, categoryID generic.CategoryID, bt generic.BalanceType, source string, at generic.TimePoint) generic.EntryID {
	key := fmt.Sprintf("%s|%s|%s|%s|%d", employeeID, categoryID, bt, source, at.Time.Unix())
	return generic.EntryID(fmt.Sprintf("%s-%016x", bt, xxh3.HashString(key)))
}
