/*
lifecycle.go - Lifecycle Orchestrator

PURPOSE:
  Reacts to employment events by driving the Interval Store and the Balance
  Ledger Engine together, inside the caller's transaction.

STATE MACHINE (per employee, derived from events):

    Unemployed --hired--> Employed --contract_end--> Unemployed --hired--> ...

  Any other transition (hire while employed, contract end while unemployed)
  is a ConflictError. The state is taken just before the event, so a stored
  event can be replayed.

CONTRACT END (effective date D, boundary B = D - 1 day):
  1. Reset every dimension at B; clear [B, next hire) when rehired later
  2. Delete every ledger entry in [B, next hire), replay generated entries
  3. Re-derive the end-of-contract entries of this and later contract ends
  4. Collapse a duplicated working-place run ending at B
  5. Link the event to the working-place interval closed at B

HIRE (date H):
  Opens the payload's assignments at H. Without a payload, a rehire
  reopens the policies in force just before the previous contract end.

WORK CONTRACT CHANGE (date C, rate R):
  Every time-off assignment covering C is re-assigned at C with rate R.
  The new interval's assignation prorates the allowance difference.

SEE ALSO:
  - engine.go: Locking, transactions, observers
*/
package timeoff

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// SHARED STEPS
// =============================================================================

// ensureEvent stores event unless an event with its ID exists, and returns
// the stored version.
func (t *txn) ensureEvent(ctx context.Context, event generic.Event) (generic.Event, error) {
	stored, err := t.store.GetEvent(ctx, event.ID)
	switch {
	case err == nil:
		if stored.EmployeeID != event.EmployeeID || stored.Kind != event.Kind {
			return generic.Event{}, &generic.ValidationError{Field: "id", Message: "event " + string(event.ID) + " already exists with different content"}
		}
		t.event = stored
		return stored, nil
	case generic.IsNotFound(err):
		saved, err := t.store.SaveEvent(ctx, event)
		if err != nil {
			return generic.Event{}, fmt.Errorf("save event: %w", err)
		}
		t.event = saved
		return saved, nil
	default:
		return generic.Event{}, err
	}
}

// assign runs the Interval Store and recomputes the ledger for time-off
// assignments that changed.
func (t *txn) assign(ctx context.Context, req AssignRequest) (generic.AssignPlan, error) {
	plan, err := t.assignments.Assign(ctx, req)
	if err != nil {
		return generic.AssignPlan{}, err
	}
	t.intervals.Merge(plan.Change)
	if req.Dimension != generic.DimensionTimeOffPolicy {
		return plan, nil
	}
	switch plan.Outcome {
	case generic.AssignNoop:
		return plan, nil
	case generic.AssignMetadata:
		prevAt, prevOrder := plan.Previous.EffectiveAt, plan.Previous.StartDayOrder
		recomputed, err := t.ledger.RecomputeForAssignmentChange(ctx, plan.Interval, &prevAt, &prevOrder)
		if err != nil || !recomputed {
			return plan, err
		}
		from := generic.MinTime(plan.Interval.EffectiveAt, prevAt)
		return plan, t.refreshEndOfContract(ctx, plan.Interval.EmployeeID, plan.Interval.CategoryID, from, "")
	default:
		return plan, t.regenerate(ctx, plan.Interval.EmployeeID, plan.Interval.CategoryID, req.EffectiveAt)
	}
}

// regenerate replays the category from from, then re-derives the
// end-of-contract entries that depend on the replayed range.
func (t *txn) regenerate(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, from generic.TimePoint) error {
	if err := t.ledger.Regenerate(ctx, employeeID, categoryID, from); err != nil {
		return err
	}
	return t.refreshEndOfContract(ctx, employeeID, categoryID, from, "")
}

// refreshEndOfContract recomputes the end-of-contract entry of every
// contract end dated on or after from, except skip. Only the vacation
// category carries these entries; other categories are ignored.
func (t *txn) refreshEndOfContract(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, from generic.TimePoint, skip generic.EventID) error {
	cat, err := t.store.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if !cat.IsVacation() {
		return nil
	}
	events, err := t.store.Events(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		if e.Kind != generic.EventContractEnd || e.ID == skip || e.EffectiveAt.Date().Before(from.Date()) {
			continue
		}
		previous, err := t.allowanceBefore(ctx, employeeID, cat.ID, generic.ContractEndBoundary(e.EffectiveAt))
		if err != nil {
			return err
		}
		if _, err := t.ledger.CreateEndOfContractEntry(ctx, e, cat.ID, previous); err != nil {
			return err
		}
	}
	return nil
}

// activeCategories lists categories with entries or time-off intervals.
func (t *txn) activeCategories(ctx context.Context, employeeID generic.EmployeeID) ([]generic.CategoryID, error) {
	fromEntries, err := t.store.EntryCategories(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("load entry categories: %w", err)
	}
	ivs, err := t.store.IntervalsOf(ctx, employeeID, generic.DimensionTimeOffPolicy)
	if err != nil {
		return nil, fmt.Errorf("load time-off intervals: %w", err)
	}
	seen := make(map[generic.CategoryID]bool)
	var out []generic.CategoryID
	add := func(id generic.CategoryID) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range fromEntries {
		add(id)
	}
	for _, iv := range ivs {
		add(iv.CategoryID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *txn) vacationCategory(ctx context.Context, accountID generic.AccountID) (generic.Category, bool, error) {
	cats, err := t.store.ListCategories(ctx, accountID)
	if err != nil {
		return generic.Category{}, false, fmt.Errorf("load categories: %w", err)
	}
	for _, c := range cats {
		if c.IsVacation() {
			return c, true, nil
		}
	}
	return generic.Category{}, false, nil
}

// allowanceBefore returns the annual allowance of the category's interval
// covering the day before boundary.
func (t *txn) allowanceBefore(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, boundary generic.TimePoint) (generic.Amount, error) {
	series, err := t.assignments.Series(ctx, employeeID, generic.DimensionTimeOffPolicy, categoryID)
	if err != nil {
		return generic.Amount{}, err
	}
	zero := generic.NewAmountFromInt(0, generic.UnitDays)
	iv, ok := series.Covering(boundary.AddDays(-1))
	if !ok {
		return zero, nil
	}
	policy, err := t.store.GetTimeOffPolicy(ctx, iv.PolicyID)
	if err != nil {
		return generic.Amount{}, err
	}
	if !policy.Active {
		return policy.Amount.Zero(), nil
	}
	return policy.Allowance(iv.OccupationRate), nil
}

// link points the current event at an interval.
func (t *txn) link(ctx context.Context, id generic.IntervalID) error {
	if err := t.store.LinkInterval(ctx, t.event.ID, id); err != nil {
		return err
	}
	t.event.LinkedIntervalID = id
	return nil
}

func (t *txn) requireEmployee(ctx context.Context, employeeID generic.EmployeeID) (generic.Employee, error) {
	return t.store.GetEmployee(ctx, employeeID)
}

// =============================================================================
// HIRE
// =============================================================================

func (t *txn) onHire(ctx context.Context, event generic.Event) error {
	if _, err := t.store.GetEmployee(ctx, event.EmployeeID); err != nil {
		if !generic.IsNotFound(err) {
			return err
		}
		if err := t.store.SaveEmployee(ctx, generic.Employee{ID: event.EmployeeID, AccountID: event.AccountID}); err != nil {
			return fmt.Errorf("create employee: %w", err)
		}
	}
	event, err := t.ensureEvent(ctx, event)
	if err != nil {
		return err
	}
	events, err := t.store.Events(ctx, event.EmployeeID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	if generic.StateBefore(events, event) == generic.StateEmployed {
		return &generic.ConflictError{
			Code:    generic.CodeEmployed,
			Message: fmt.Sprintf("employee %s is already employed on %s", event.EmployeeID, event.EffectiveAt),
		}
	}

	var previousEnd *generic.Event
	for i := range events {
		if events[i].Kind == generic.EventContractEnd && generic.EventLess(events[i], event) {
			previousEnd = &events[i]
		}
	}

	requests, err := t.hireAssignments(ctx, event, previousEnd)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		t.noop = true
		return nil
	}

	// The event links to its first time-off interval, else the first one.
	var link, timeOffLink generic.IntervalID
	for _, req := range requests {
		plan, err := t.assign(ctx, req)
		if err != nil {
			return err
		}
		if link == "" {
			link = plan.Interval.ID
		}
		if timeOffLink == "" && req.Dimension == generic.DimensionTimeOffPolicy {
			timeOffLink = plan.Interval.ID
		}
	}
	if timeOffLink != "" {
		link = timeOffLink
	}
	return t.link(ctx, link)
}

// hireAssignments resolves what a hire opens: the payload when present,
// otherwise the policies in force before the previous contract end.
func (t *txn) hireAssignments(ctx context.Context, event generic.Event, previousEnd *generic.Event) ([]AssignRequest, error) {
	at := event.EffectiveAt.Date()
	if !event.Hire.IsEmpty() {
		var reqs []AssignRequest
		if event.Hire.WorkingPlaceID != "" {
			reqs = append(reqs, AssignRequest{EmployeeID: event.EmployeeID, Dimension: generic.DimensionWorkingPlace, PolicyID: event.Hire.WorkingPlaceID, EffectiveAt: at, EventID: event.ID})
		}
		if event.Hire.PresencePolicyID != "" {
			reqs = append(reqs, AssignRequest{EmployeeID: event.EmployeeID, Dimension: generic.DimensionPresencePolicy, PolicyID: event.Hire.PresencePolicyID, EffectiveAt: at, EventID: event.ID})
		}
		for _, id := range event.Hire.TimeOffPolicyIDs {
			reqs = append(reqs, AssignRequest{
				EmployeeID:     event.EmployeeID,
				Dimension:      generic.DimensionTimeOffPolicy,
				PolicyID:       id,
				EffectiveAt:    at,
				OccupationRate: event.Hire.OccupationRate,
				EventID:        event.ID,
			})
		}
		return reqs, nil
	}
	if previousEnd == nil {
		return nil, nil
	}

	lastDay := generic.ContractEndBoundary(previousEnd.EffectiveAt).AddDays(-1)
	var reqs []AssignRequest
	for _, dim := range generic.Dimensions {
		all, err := t.assignments.AllSeries(ctx, event.EmployeeID, dim)
		if err != nil {
			return nil, err
		}
		cats := make([]generic.CategoryID, 0, len(all))
		for cat := range all {
			cats = append(cats, cat)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		for _, cat := range cats {
			iv, ok := all[cat].Covering(lastDay)
			if !ok {
				continue
			}
			reqs = append(reqs, AssignRequest{
				EmployeeID:     event.EmployeeID,
				Dimension:      dim,
				PolicyID:       iv.PolicyID,
				EffectiveAt:    at,
				OccupationRate: iv.OccupationRate,
				EventID:        event.ID,
			})
		}
	}
	return reqs, nil
}

// =============================================================================
// CONTRACT END
// =============================================================================

func (t *txn) onContractEnd(ctx context.Context, event generic.Event) error {
	emp, err := t.requireEmployee(ctx, event.EmployeeID)
	if err != nil {
		return err
	}
	event, err = t.ensureEvent(ctx, event)
	if err != nil {
		return err
	}
	events, err := t.store.Events(ctx, emp.ID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if first, hired := generic.FirstHireDate(events); !hired || event.EffectiveAt.Before(first) {
		return &generic.ConflictError{
			Code:    generic.CodeBeforeHire,
			Message: fmt.Sprintf("contract end on %s precedes the first hire of employee %s", event.EffectiveAt, emp.ID),
		}
	}
	if generic.StateBefore(events, event) == generic.StateUnemployed {
		return &generic.ConflictError{
			Code:    generic.CodeUnemployed,
			Message: fmt.Sprintf("employee %s is not employed when the contract ends on %s", emp.ID, event.EffectiveAt),
		}
	}

	boundary := generic.ContractEndBoundary(event.EffectiveAt)
	var rehire *generic.TimePoint
	if next, ok := generic.NextHireAfter(events, event); ok {
		d := next.EffectiveAt.Date()
		rehire = &d
	}

	for _, dim := range generic.Dimensions {
		change, err := t.assignments.ResetDimension(ctx, emp.ID, dim, boundary, rehire)
		if err != nil {
			return fmt.Errorf("reset %s: %w", dim, err)
		}
		t.intervals.Merge(change)
	}

	categories, err := t.activeCategories(ctx, emp.ID)
	if err != nil {
		return err
	}
	// Only the unemployment period is cleared: a later employment keeps its
	// manual, removal and end-of-contract entries.
	for _, cat := range categories {
		if err := t.ledger.DeleteFrom(ctx, emp.ID, cat, boundary, rehire); err != nil {
			return err
		}
		if err := t.ledger.Regenerate(ctx, emp.ID, cat, boundary); err != nil {
			return err
		}
	}

	vacation, ok, err := t.vacationCategory(ctx, emp.AccountID)
	if err != nil {
		return err
	}
	if ok {
		if err := t.refreshEndOfContract(ctx, emp.ID, vacation.ID, boundary, ""); err != nil {
			return err
		}
	}

	workingPlaces, err := t.assignments.Series(ctx, emp.ID, generic.DimensionWorkingPlace, "")
	if err != nil {
		return err
	}
	closed, ok := workingPlaces.EndingAt(boundary)
	if !ok {
		return nil
	}
	change, err := t.assignments.CollapseSequence(ctx, closed)
	if err != nil {
		return err
	}
	t.intervals.Merge(change)
	if !change.IsEmpty() {
		closed = change.Upserts[0]
	}
	return t.link(ctx, closed.ID)
}

// =============================================================================
// CONTRACT END DELETION
// =============================================================================

func (t *txn) onContractEndDeleted(ctx context.Context, eventID generic.EventID) error {
	event, err := t.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Kind != generic.EventContractEnd {
		return &generic.ValidationError{Field: "kind", Message: "event " + string(eventID) + " is not a contract end"}
	}
	t.event = event
	emp, err := t.requireEmployee(ctx, event.EmployeeID)
	if err != nil {
		return err
	}
	boundary := generic.ContractEndBoundary(event.EffectiveAt)

	vacation, ok, err := t.vacationCategory(ctx, emp.AccountID)
	if err != nil {
		return err
	}
	if ok {
		if _, err := t.ledger.DestroyEndOfContractEntry(ctx, event, vacation.ID, event.EffectiveAt.Date().AddDays(1)); err != nil {
			return err
		}
	}
	if err := t.link(ctx, ""); err != nil {
		return err
	}

	events, err := t.store.Events(ctx, emp.ID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if _, rehired := generic.NextHireAfter(events, event); !rehired {
		if err := t.reopenAt(ctx, emp.ID, boundary); err != nil {
			return err
		}
	}

	categories, err := t.activeCategories(ctx, emp.ID)
	if err != nil {
		return err
	}
	for _, cat := range categories {
		if err := t.ledger.Regenerate(ctx, emp.ID, cat, boundary); err != nil {
			return err
		}
		if err := t.refreshEndOfContract(ctx, emp.ID, cat, boundary, event.ID); err != nil {
			return err
		}
	}
	return t.engine.eventDeleter.DeleteEvent(ctx, t.store, event)
}

// reopenAt makes the last interval of each series current again when it was
// closed at boundary.
func (t *txn) reopenAt(ctx context.Context, employeeID generic.EmployeeID, boundary generic.TimePoint) error {
	for _, dim := range generic.Dimensions {
		all, err := t.assignments.AllSeries(ctx, employeeID, dim)
		if err != nil {
			return err
		}
		for _, series := range all {
			if len(series) == 0 {
				continue
			}
			last := series[len(series)-1]
			if last.EffectiveTill == nil || !last.EffectiveTill.Equal(boundary) {
				continue
			}
			last.EffectiveTill = nil
			change := generic.Change{Upserts: []generic.Interval{last}}
			if err := t.assignments.Apply(ctx, series, change); err != nil {
				return err
			}
			t.intervals.Merge(change)
		}
	}
	return nil
}

// =============================================================================
// WORK CONTRACT CHANGE
// =============================================================================

func (t *txn) onWorkContractChange(ctx context.Context, event generic.Event) error {
	emp, err := t.requireEmployee(ctx, event.EmployeeID)
	if err != nil {
		return err
	}
	if event.OccupationRate == nil {
		return &generic.ValidationError{Field: "occupation_rate", Message: "required for work_contract_change"}
	}
	event, err = t.ensureEvent(ctx, event)
	if err != nil {
		return err
	}
	at := event.EffectiveAt.Date()

	all, err := t.assignments.AllSeries(ctx, emp.ID, generic.DimensionTimeOffPolicy)
	if err != nil {
		return err
	}
	cats := make([]generic.CategoryID, 0, len(all))
	for cat := range all {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var link generic.IntervalID
	for _, cat := range cats {
		current, ok := all[cat].Covering(at)
		if !ok {
			continue
		}
		plan, err := t.assign(ctx, AssignRequest{
			EmployeeID:     emp.ID,
			Dimension:      generic.DimensionTimeOffPolicy,
			PolicyID:       current.PolicyID,
			EffectiveAt:    at,
			OccupationRate: event.OccupationRate,
			EventID:        event.ID,
		})
		if err != nil {
			return err
		}
		if link == "" {
			link = plan.Interval.ID
		}
	}
	if link == "" {
		t.noop = true
		return nil
	}
	return t.link(ctx, link)
}

// =============================================================================
// RECORD ONLY
// =============================================================================

// recordOnly stores events that do not affect assignments.
func (t *txn) recordOnly(ctx context.Context, event generic.Event) error {
	if _, err := t.requireEmployee(ctx, event.EmployeeID); err != nil {
		return err
	}
	_, err := t.ensureEvent(ctx, event)
	return err
}

// =============================================================================
// INTERVAL DESTRUCTION
// =============================================================================

func (t *txn) destroyInterval(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, intervalID generic.IntervalID) error {
	iv, err := t.store.GetInterval(ctx, dim, intervalID)
	if err != nil {
		return err
	}
	if iv.EmployeeID != employeeID {
		return generic.NotFound("interval", intervalID)
	}
	change, err := t.assignments.Destroy(ctx, iv)
	if err != nil {
		return err
	}
	t.intervals.Merge(change)
	if dim != generic.DimensionTimeOffPolicy {
		return nil
	}
	return t.regenerate(ctx, employeeID, iv.CategoryID, iv.EffectiveAt)
}

// =============================================================================
// ACCRUAL REFRESH
// =============================================================================

// refreshAccruals replays each category from the day after its latest
// generated entry. Cycle starts that passed since then get their entries;
// a current ledger is left untouched.
func (t *txn) refreshAccruals(ctx context.Context, employeeID generic.EmployeeID) error {
	if _, err := t.requireEmployee(ctx, employeeID); err != nil {
		return err
	}
	cats, err := t.activeCategories(ctx, employeeID)
	if err != nil {
		return err
	}
	for _, cat := range cats {
		entries, err := t.store.Entries(ctx, employeeID, cat)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		var from generic.TimePoint
		for _, e := range entries {
			if e.Type.IsGenerated() && !e.EffectiveAt.Date().Before(from) {
				from = e.EffectiveAt.Date().AddDays(1)
			}
		}
		if err := t.ledger.Regenerate(ctx, employeeID, cat, from); err != nil {
			return err
		}
	}
	t.noop = t.ledger.Regenerated() == 0
	return nil
}
