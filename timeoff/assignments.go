/*
assignments.go - Interval Store: effective-dated policy assignments

PURPOSE:
  Applies the interval algebra of generic/interval.go against a Store,
  enforcing the lifecycle rules an assignment must respect:

  - effectiveAt must not precede the employee's first hire
  - effectiveAt must not fall inside an unemployment period
  - the referenced employee and policy must exist

  Every method works on the Store it was built with; the Engine builds one
  per transaction, so a failed operation leaves nothing behind.

SERIES:
  Working places and presence policies form one series per employee.
  Time-off assignments form one series per (employee, category): an
  employee holds one time-off policy per category at a time.

SEE ALSO:
  - generic/interval.go: PlanAssign, PlanReset, PlanCollapse
  - engine.go: Drives these from lifecycle events
*/
package timeoff

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// AssignRequest asks for a policy to apply from EffectiveAt onward.
type AssignRequest struct {
	EmployeeID  generic.EmployeeID
	Dimension   generic.Dimension
	PolicyID    generic.PolicyID
	EffectiveAt generic.TimePoint

	// Time-off only
	StartDayOrder  int
	OccupationRate *decimal.Decimal
	EventID        generic.EventID
}

// Assignments is the Interval Store bound to one Store (usually a tx).
type Assignments struct {
	store generic.Store
	newID func() generic.IntervalID
}

func NewAssignments(store generic.Store, newID func() generic.IntervalID) *Assignments {
	return &Assignments{store: store, newID: newID}
}

// Series loads and validates one series.
func (a *Assignments) Series(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, categoryID generic.CategoryID) (generic.Series, error) {
	ivs, err := a.store.Intervals(ctx, employeeID, dim, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load %s intervals: %w", dim, err)
	}
	return generic.NewSeries(ivs)
}

// AllSeries loads every series of a dimension, keyed by category (a single
// empty-category series for working places and presence policies).
func (a *Assignments) AllSeries(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension) (map[generic.CategoryID]generic.Series, error) {
	ivs, err := a.store.IntervalsOf(ctx, employeeID, dim)
	if err != nil {
		return nil, fmt.Errorf("load %s intervals: %w", dim, err)
	}
	grouped := make(map[generic.CategoryID][]generic.Interval)
	for _, iv := range ivs {
		grouped[iv.CategoryID] = append(grouped[iv.CategoryID], iv)
	}
	out := make(map[generic.CategoryID]generic.Series, len(grouped))
	for cat, group := range grouped {
		s, err := generic.NewSeries(group)
		if err != nil {
			return nil, err
		}
		out[cat] = s
	}
	return out, nil
}

// =============================================================================
// ASSIGN
// =============================================================================

// Assign inserts an interval starting at req.EffectiveAt. The interval that
// covered that date is truncated there. Assigning the policy already in force
// is a no-op.
func (a *Assignments) Assign(ctx context.Context, req AssignRequest) (generic.AssignPlan, error) {
	if !req.Dimension.Valid() {
		return generic.AssignPlan{}, &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(req.Dimension)}
	}
	emp, err := a.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return generic.AssignPlan{}, err
	}
	categoryID, err := a.resolvePolicy(ctx, req.Dimension, req.PolicyID)
	if err != nil {
		return generic.AssignPlan{}, err
	}
	at := req.EffectiveAt.Date()
	if err := a.checkEmployed(ctx, req.EmployeeID, at); err != nil {
		return generic.AssignPlan{}, err
	}

	series, err := a.Series(ctx, req.EmployeeID, req.Dimension, categoryID)
	if err != nil {
		return generic.AssignPlan{}, err
	}

	proposed := generic.Interval{
		ID:          a.newID(),
		AccountID:   emp.AccountID,
		EmployeeID:  req.EmployeeID,
		Dimension:   req.Dimension,
		PolicyID:    req.PolicyID,
		CategoryID:  categoryID,
		EffectiveAt: at,
		EventID:     req.EventID,
	}
	if req.Dimension == generic.DimensionTimeOffPolicy {
		proposed.OccupationRate = req.OccupationRate
		proposed.StartDayOrder = req.StartDayOrder
	}

	plan := generic.PlanAssign(series, proposed)
	if err := a.Apply(ctx, series, plan.Change); err != nil {
		return generic.AssignPlan{}, err
	}
	return plan, nil
}

func (a *Assignments) resolvePolicy(ctx context.Context, dim generic.Dimension, id generic.PolicyID) (generic.CategoryID, error) {
	switch dim {
	case generic.DimensionWorkingPlace:
		_, err := a.store.GetWorkingPlace(ctx, id)
		return "", err
	case generic.DimensionPresencePolicy:
		_, err := a.store.GetPresencePolicy(ctx, id)
		return "", err
	case generic.DimensionTimeOffPolicy:
		p, err := a.store.GetTimeOffPolicy(ctx, id)
		if err != nil {
			return "", err
		}
		return p.CategoryID, nil
	default:
		return "", &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(dim)}
	}
}

// checkEmployed rejects dates before the first hire or inside a gap.
func (a *Assignments) checkEmployed(ctx context.Context, employeeID generic.EmployeeID, at generic.TimePoint) error {
	events, err := a.store.Events(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	first, hired := generic.FirstHireDate(events)
	if !hired || at.Before(first) {
		return &generic.ConflictError{
			Code:    generic.CodeBeforeHire,
			Message: fmt.Sprintf("employee %s is not hired on %s", employeeID, at),
		}
	}
	for _, gap := range generic.UnemploymentPeriods(events) {
		if gap.Contains(at) {
			return &generic.ConflictError{
				Code:    generic.CodeUnemployed,
				Message: fmt.Sprintf("employee %s is unemployed on %s (gap %s)", employeeID, at, gap.Window()),
			}
		}
	}
	return nil
}

// =============================================================================
// RESET / COLLAPSE / DESTROY
// =============================================================================

// ResetDimension closes every series of dim at from and clears [from, to).
// to is the next hire date, nil when the employee was not rehired.
func (a *Assignments) ResetDimension(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, from generic.TimePoint, to *generic.TimePoint) (generic.Change, error) {
	all, err := a.AllSeries(ctx, employeeID, dim)
	if err != nil {
		return generic.Change{}, err
	}
	var total generic.Change
	for _, series := range all {
		change := generic.PlanReset(series, from, to, a.newID)
		if err := a.Apply(ctx, series, change); err != nil {
			return generic.Change{}, err
		}
		total.Merge(change)
	}
	return total, nil
}

// FindSequenceInTime returns the maximal run of adjacent same-policy
// intervals containing anchor.
func (a *Assignments) FindSequenceInTime(ctx context.Context, anchor generic.Interval) ([]generic.Interval, error) {
	series, err := a.Series(ctx, anchor.EmployeeID, anchor.Dimension, anchor.CategoryID)
	if err != nil {
		return nil, err
	}
	return series.SequenceContaining(anchor), nil
}

// CollapseSequence merges the run containing anchor into a single interval.
func (a *Assignments) CollapseSequence(ctx context.Context, anchor generic.Interval) (generic.Change, error) {
	series, err := a.Series(ctx, anchor.EmployeeID, anchor.Dimension, anchor.CategoryID)
	if err != nil {
		return generic.Change{}, err
	}
	change := generic.PlanCollapse(series.SequenceContaining(anchor))
	if err := a.Apply(ctx, series, change); err != nil {
		return generic.Change{}, err
	}
	return change, nil
}

// Destroy removes one interval. Neighbours are left untouched.
func (a *Assignments) Destroy(ctx context.Context, iv generic.Interval) (generic.Change, error) {
	if err := a.store.DeleteInterval(ctx, iv.Dimension, iv.ID); err != nil {
		return generic.Change{}, fmt.Errorf("delete interval %s: %w", iv.ID, err)
	}
	return generic.Change{Deletes: []generic.Interval{iv}}, nil
}

// Apply persists a change after checking the resulting series still holds.
func (a *Assignments) Apply(ctx context.Context, series generic.Series, change generic.Change) error {
	if change.IsEmpty() {
		return nil
	}
	if err := series.Apply(change).Validate(); err != nil {
		return err
	}
	for _, iv := range change.Deletes {
		if err := a.store.DeleteInterval(ctx, iv.Dimension, iv.ID); err != nil {
			return fmt.Errorf("delete interval %s: %w", iv.ID, err)
		}
	}
	for _, iv := range change.Upserts {
		if err := a.store.SaveInterval(ctx, iv); err != nil {
			return fmt.Errorf("save interval %s: %w", iv.ID, err)
		}
	}
	return nil
}
