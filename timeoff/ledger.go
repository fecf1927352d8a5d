/*
ledger.go - Balance Ledger Engine

PURPOSE:
  Keeps an employee's balance entries consistent with their time-off
  assignment intervals. Generated entries (assignation, addition, reset)
  are never patched in place: everything at or after the earliest affected
  date is deleted and replayed from the intervals.

INVARIANTS:
  - Entries of one (employee, category) are totally ordered by EffectiveAt,
    then insertion order.
  - At most one end_of_contract entry exists per contract-end event. Its ID
    is derived from the event ID, so recomputation replaces it.
  - Manual and removal entries survive replay. Only a contract end deletes
    them (everything inside the unemployment period goes).
  - End-of-contract entries are re-derived whenever the vacation ledger is
    replayed from a date on or before their contract end.

RECOMPUTATION GUARD:
  RecomputeForAssignmentChange does nothing when neither the interval start
  nor its effective start day moved. This stops unrelated updates from
  triggering a full replay.

END OF CONTRACT:
  amount:  ContractEndProration(previous annual allowance, contract date)
  date:    last non-end-of-contract entry of the vacation category at or
           before the contract date, shifted by a fixed offset
  No prior vacation entry means no end-of-contract entry.

SEE ALSO:
  - accrual.go: What each interval generates
  - cache.go: Running balance cache
*/
package timeoff

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
	"github.com/zeebo/xxh3"
)

// DefaultEndOfContractOffset separates the end-of-contract entry from the
// vacation entry it is anchored on.
const DefaultEndOfContractOffset = 5 * time.Second

// LedgerChange lists the entries an operation wrote for one category.
type LedgerChange struct {
	EmployeeID generic.EmployeeID
	CategoryID generic.CategoryID
	Saved      []generic.Entry
	Deleted    []generic.Entry
}

// Ledger is the Balance Ledger Engine bound to one Store (usually a tx).
type Ledger struct {
	store     generic.Store
	limit     generic.TimePoint
	eocOffset time.Duration

	changes map[balanceKey]*LedgerChange
	order   []balanceKey
}

func NewLedger(store generic.Store, clock generic.Clock, eocOffset time.Duration) *Ledger {
	return &Ledger{
		store:     store,
		limit:     generic.DateOf(clock.Now()),
		eocOffset: eocOffset,
		changes:   make(map[balanceKey]*LedgerChange),
	}
}

// Changes returns what the ledger wrote, per category, in first-touch order.
func (l *Ledger) Changes() []LedgerChange {
	out := make([]LedgerChange, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.changes[k])
	}
	return out
}

// Regenerated counts saved generated entries.
func (l *Ledger) Regenerated() int {
	n := 0
	for _, c := range l.changes {
		for _, e := range c.Saved {
			if e.Type.IsGenerated() {
				n++
			}
		}
	}
	return n
}

// =============================================================================
// RECOMPUTATION
// =============================================================================

// RecomputeForAssignmentChange replays the interval's category from the
// earliest affected date. previousEffectiveAt/previousStartDayOrder describe
// the interval before the change; when both are given and the effective
// start did not move, nothing happens and false is returned.
func (l *Ledger) RecomputeForAssignmentChange(ctx context.Context, iv generic.Interval, previousEffectiveAt *generic.TimePoint, previousStartDayOrder *int) (bool, error) {
	from := iv.EffectiveAt.Date()
	if previousEffectiveAt != nil && previousStartDayOrder != nil {
		policy, err := l.store.GetTimeOffPolicy(ctx, iv.PolicyID)
		if err != nil {
			return false, err
		}
		before := iv
		before.EffectiveAt = previousEffectiveAt.Date()
		before.StartDayOrder = *previousStartDayOrder
		cycle := policy.Cycle()
		if before.EffectiveAt.Equal(iv.EffectiveAt) && EffectiveStart(before, cycle).Equal(EffectiveStart(iv, cycle)) {
			return false, nil
		}
		from = generic.MinTime(from, before.EffectiveAt)
	}
	return true, l.Regenerate(ctx, iv.EmployeeID, iv.CategoryID, from)
}

// Regenerate deletes generated entries dated on or after from and replays
// every interval of the category from that date.
func (l *Ledger) Regenerate(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, from generic.TimePoint) error {
	from = from.Date()
	entries, err := l.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	for _, e := range entries {
		if e.Type.IsGenerated() && !e.EffectiveAt.Date().Before(from) {
			if err := l.delete(ctx, e); err != nil {
				return err
			}
		}
	}

	planned, err := l.plan(ctx, employeeID, categoryID, from)
	if err != nil {
		return err
	}
	for _, p := range planned {
		switch p.Type {
		case generic.BalanceReset:
			balance, err := l.balanceBefore(ctx, employeeID, categoryID, p.EffectiveAt)
			if err != nil {
				return err
			}
			p.Amount = balance.Neg()
			if _, err := l.save(ctx, p.Entry); err != nil {
				return err
			}
		case generic.BalanceAssignation:
			if _, err := l.CreateAssignationEntry(ctx, p.Entry); err != nil {
				return err
			}
		default:
			if _, err := l.save(ctx, p.Entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Ledger) plan(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, from generic.TimePoint) ([]plannedEntry, error) {
	ivs, err := l.store.Intervals(ctx, employeeID, generic.DimensionTimeOffPolicy, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load intervals: %w", err)
	}
	series, err := generic.NewSeries(ivs)
	if err != nil {
		return nil, err
	}

	policies := make(map[generic.PolicyID]generic.TimeOffPolicy)
	policyOf := func(id generic.PolicyID) (generic.TimeOffPolicy, error) {
		if p, ok := policies[id]; ok {
			return p, nil
		}
		p, err := l.store.GetTimeOffPolicy(ctx, id)
		if err != nil {
			return generic.TimeOffPolicy{}, err
		}
		policies[id] = p
		return p, nil
	}

	var planned []plannedEntry
	for i, iv := range series {
		if iv.EffectiveTill != nil && !iv.EffectiveTill.After(from) {
			continue
		}
		policy, err := policyOf(iv.PolicyID)
		if err != nil {
			return nil, err
		}
		sched := accrualSchedule{interval: iv, policy: policy, limit: l.limit}
		if i > 0 && adjacentIntervals(series[i-1], iv) {
			prevPolicy, err := policyOf(series[i-1].PolicyID)
			if err != nil {
				return nil, err
			}
			prev := prevPolicy.Allowance(series[i-1].OccupationRate)
			if !prevPolicy.Active {
				prev = prev.Zero()
			}
			sched.previous = &prev
		}
		for _, p := range sched.entries() {
			if !p.EffectiveAt.Date().Before(from) {
				planned = append(planned, p)
			}
		}
	}
	sort.SliceStable(planned, func(i, j int) bool { return planned[i].EffectiveAt.Before(planned[j].EffectiveAt) })
	return planned, nil
}

func adjacentIntervals(a, b generic.Interval) bool {
	return a.EffectiveTill != nil && a.EffectiveTill.Equal(b.EffectiveAt)
}

// DeleteFrom removes every entry, of any type, dated on or after from and,
// when till is set, before till. Entries of a later employment stay.
func (l *Ledger) DeleteFrom(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, from generic.TimePoint, till *generic.TimePoint) error {
	entries, err := l.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	for _, e := range entries {
		day := e.EffectiveAt.Date()
		if day.Before(from.Date()) || (till != nil && !day.Before(till.Date())) {
			continue
		}
		if err := l.delete(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SINGLE ENTRIES
// =============================================================================

// CreateAssignationEntry inserts the entry opening a time-off interval.
func (l *Ledger) CreateAssignationEntry(ctx context.Context, e generic.Entry) (generic.Entry, error) {
	e.Type = generic.BalanceAssignation
	return l.save(ctx, e)
}

// CreateEndOfContractEntry replaces the end-of-contract entry of event.
// It returns nil when the vacation category has no entry at or before the
// contract date.
func (l *Ledger) CreateEndOfContractEntry(ctx context.Context, event generic.Event, vacationID generic.CategoryID, previousAllowance generic.Amount) (*generic.Entry, error) {
	id := endOfContractID(event.ID)
	entries, err := l.store.Entries(ctx, event.EmployeeID, vacationID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	var anchor *generic.Entry
	for i := range entries {
		e := entries[i]
		if e.ID == id {
			if err := l.delete(ctx, e); err != nil {
				return nil, err
			}
			continue
		}
		if e.Type == generic.BalanceEndOfContract || e.EffectiveAt.Date().After(event.EffectiveAt.Date()) {
			continue
		}
		anchor = &entries[i]
	}
	if anchor == nil {
		return nil, nil
	}

	entry := generic.Entry{
		ID:          id,
		AccountID:   event.AccountID,
		EmployeeID:  event.EmployeeID,
		CategoryID:  vacationID,
		Type:        generic.BalanceEndOfContract,
		Amount:      ContractEndProration(previousAllowance, event.EffectiveAt),
		EffectiveAt: anchor.EffectiveAt.Add(l.eocOffset),
		EventID:     event.ID,
		Reason:      "end of contract " + event.EffectiveAt.String(),
	}
	saved, err := l.save(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DestroyEndOfContractEntry deletes the entry created for event, falling
// back to the latest end-of-contract entry strictly before beforeDate.
func (l *Ledger) DestroyEndOfContractEntry(ctx context.Context, event generic.Event, vacationID generic.CategoryID, beforeDate generic.TimePoint) (*generic.Entry, error) {
	entries, err := l.store.Entries(ctx, event.EmployeeID, vacationID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	id := endOfContractID(event.ID)
	for _, e := range entries {
		if e.ID == id {
			return &e, l.delete(ctx, e)
		}
	}
	return l.FindAndDestroyEndOfContractEntry(ctx, event.EmployeeID, vacationID, beforeDate)
}

// FindAndDestroyEndOfContractEntry deletes the most recent end-of-contract
// entry dated strictly before beforeDate. Finding none is not an error.
func (l *Ledger) FindAndDestroyEndOfContractEntry(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, beforeDate generic.TimePoint) (*generic.Entry, error) {
	entries, err := l.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Type == generic.BalanceEndOfContract && e.EffectiveAt.Before(beforeDate) {
			return &e, l.delete(ctx, e)
		}
	}
	return nil, nil
}

// =============================================================================
// BALANCE
// =============================================================================

// RunningBalance sums entries dated on or before asOf.
func (l *Ledger) RunningBalance(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, asOf generic.TimePoint) (generic.Amount, error) {
	entries, err := l.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("load entries: %w", err)
	}
	return sumEntries(entries, func(e generic.Entry) bool { return !e.EffectiveAt.Date().After(asOf.Date()) }), nil
}

func (l *Ledger) balanceBefore(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, at generic.TimePoint) (generic.Amount, error) {
	entries, err := l.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("load entries: %w", err)
	}
	return sumEntries(entries, func(e generic.Entry) bool { return e.EffectiveAt.Before(at) }), nil
}

func sumEntries(entries []generic.Entry, include func(generic.Entry) bool) generic.Amount {
	total := generic.Amount{Value: decimal.Zero, Unit: generic.UnitDays}
	for i, e := range entries {
		if i == 0 {
			total.Unit = e.Amount.Unit
		}
		if include(e) {
			total.Value = total.Value.Add(e.Amount.Value)
		}
	}
	return total
}

// =============================================================================
// WRITES
// =============================================================================

func (l *Ledger) save(ctx context.Context, e generic.Entry) (generic.Entry, error) {
	saved, err := l.store.SaveEntry(ctx, e)
	if err != nil {
		return generic.Entry{}, fmt.Errorf("save %s entry: %w", e.Type, err)
	}
	c := l.change(e.EmployeeID, e.CategoryID)
	c.Saved = append(c.Saved, saved)
	return saved, nil
}

func (l *Ledger) delete(ctx context.Context, e generic.Entry) error {
	if err := l.store.DeleteEntry(ctx, e.ID); err != nil {
		return fmt.Errorf("delete %s entry: %w", e.Type, err)
	}
	c := l.change(e.EmployeeID, e.CategoryID)
	c.Deleted = append(c.Deleted, e)
	return nil
}

func (l *Ledger) change(employeeID generic.EmployeeID, categoryID generic.CategoryID) *LedgerChange {
	k := balanceKey{employeeID: employeeID, categoryID: categoryID}
	c, ok := l.changes[k]
	if !ok {
		c = &LedgerChange{EmployeeID: employeeID, CategoryID: categoryID}
		l.changes[k] = c
		l.order = append(l.order, k)
	}
	return c
}

func endOfContractID(eventID generic.EventID) generic.EntryID {
	return generic.EntryID(fmt.Sprintf("%s-%016x", generic.BalanceEndOfContract, xxh3.HashString(string(eventID))))
}
