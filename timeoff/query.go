package timeoff

import (
	"context"
	"fmt"

	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// QUERY LAYER - Read side, never writes
// =============================================================================

// PeriodQuery selects intervals of one dimension intersecting [From, To).
// Zero-valued filters match everything.
type PeriodQuery struct {
	AccountID  generic.AccountID
	EmployeeID generic.EmployeeID
	Dimension  generic.Dimension
	From       generic.TimePoint
	To         *generic.TimePoint

	// Dimension-specific filters
	PolicyID         generic.PolicyID   // working place, presence or time-off policy
	CategoryID       generic.CategoryID // time-off only
	ParentCategoryID generic.CategoryID // time-off only
}

// FindInPeriod returns matching intervals ordered by EffectiveAt. No match
// is an empty result, not an error.
func (e *Engine) FindInPeriod(ctx context.Context, q PeriodQuery) ([]generic.Interval, error) {
	if !q.Dimension.Valid() {
		return nil, &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(q.Dimension)}
	}
	unlock := e.locks.RLock(q.EmployeeID)
	defer unlock()

	ivs, err := e.store.IntervalsOf(ctx, q.EmployeeID, q.Dimension)
	if err != nil {
		return nil, fmt.Errorf("load %s intervals: %w", q.Dimension, err)
	}

	window := generic.Window{From: q.From.Date(), To: q.To}
	parents := make(map[generic.CategoryID]generic.CategoryID)
	out := []generic.Interval{}
	for _, iv := range ivs {
		if q.AccountID != "" && iv.AccountID != q.AccountID {
			continue
		}
		if !iv.Window().Overlaps(window) {
			continue
		}
		if q.PolicyID != "" && iv.PolicyID != q.PolicyID {
			continue
		}
		if q.Dimension != generic.DimensionTimeOffPolicy {
			out = append(out, iv)
			continue
		}
		if q.CategoryID != "" && iv.CategoryID != q.CategoryID {
			continue
		}
		if q.ParentCategoryID != "" {
			parent, ok := parents[iv.CategoryID]
			if !ok {
				cat, err := e.store.GetCategory(ctx, iv.CategoryID)
				if err != nil {
					return nil, err
				}
				parent = cat.ParentID
				parents[iv.CategoryID] = parent
			}
			if parent != q.ParentCategoryID {
				continue
			}
		}
		out = append(out, iv)
	}
	return out, nil
}

// AssignmentsAt returns every interval, all dimensions, covering date.
func (e *Engine) AssignmentsAt(ctx context.Context, employeeID generic.EmployeeID, date generic.TimePoint) ([]generic.Interval, error) {
	next := date.Date().AddDays(1)
	var out []generic.Interval
	for _, dim := range generic.Dimensions {
		ivs, err := e.FindInPeriod(ctx, PeriodQuery{EmployeeID: employeeID, Dimension: dim, From: date, To: &next})
		if err != nil {
			return nil, err
		}
		out = append(out, ivs...)
	}
	return out, nil
}

// FindSequenceInTime returns the run of adjacent same-policy intervals
// containing the given interval.
func (e *Engine) FindSequenceInTime(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, intervalID generic.IntervalID) ([]generic.Interval, error) {
	unlock := e.locks.RLock(employeeID)
	defer unlock()

	anchor, err := e.store.GetInterval(ctx, dim, intervalID)
	if err != nil {
		return nil, err
	}
	if anchor.EmployeeID != employeeID {
		return nil, generic.NotFound("interval", intervalID)
	}
	return NewAssignments(e.store, e.intervalID).FindSequenceInTime(ctx, anchor)
}

// RunningBalance returns the sum of the category's entries dated on or
// before asOf. Totals are cached per (employee, category).
func (e *Engine) RunningBalance(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID, asOf generic.TimePoint) (generic.Amount, error) {
	unlock := e.locks.RLock(employeeID)
	defer unlock()

	key := balanceKey{employeeID: employeeID, categoryID: categoryID}
	if amount, ok := e.cache.lookup(key, asOf); ok {
		return amount, nil
	}
	entries, err := e.store.Entries(ctx, employeeID, categoryID)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("load entries: %w", err)
	}
	return e.cache.store(key, entries).at(asOf), nil
}

// Entries returns the category's ledger in order.
func (e *Engine) Entries(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID) ([]generic.Entry, error) {
	unlock := e.locks.RLock(employeeID)
	defer unlock()
	return e.store.Entries(ctx, employeeID, categoryID)
}

// Events returns the employee's lifecycle events in order.
func (e *Engine) Events(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Event, error) {
	return e.store.Events(ctx, employeeID)
}
