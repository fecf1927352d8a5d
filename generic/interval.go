/*
interval.go - Effective-dated policy assignments and their algebra

PURPOSE:
  An Interval says "policy P applies to employee E from EffectiveAt
  (inclusive) until EffectiveTill (exclusive, nil = still current)".
  Intervals of one series never overlap and at most the last one is open.

SERIES:
  working_place / presence_policy:  one series per (employee, dimension)
  time_off_policy:                  one series per (employee, dimension, category)

ALGEBRA:
  The functions in this file are pure. They take the current Series and
  return a Change (upserts + deletes) that the caller persists inside its
  transaction:

    PlanAssign    insert at a date, truncating whatever covered it
    PlanReset     close everything at a boundary, clear a gap
    PlanCollapse  merge a run of adjacent same-policy intervals

EXAMPLE:
  series:   [Jan 1, ∞) office-a
  assign office-b at Apr 1
  change:   upsert [Jan 1, Apr 1) office-a, upsert [Apr 1, ∞) office-b

SEE ALSO:
  - timeoff/assignments.go: Applies these plans against a Store
*/
package generic

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIMENSION
// =============================================================================

type Dimension string

const (
	DimensionWorkingPlace   Dimension = "working_place"
	DimensionPresencePolicy Dimension = "presence_policy"
	DimensionTimeOffPolicy  Dimension = "time_off_policy"
)

var Dimensions = []Dimension{DimensionWorkingPlace, DimensionPresencePolicy, DimensionTimeOffPolicy}

func (d Dimension) Valid() bool {
	switch d {
	case DimensionWorkingPlace, DimensionPresencePolicy, DimensionTimeOffPolicy:
		return true
	default:
		return false
	}
}

// =============================================================================
// INTERVAL
// =============================================================================

type Interval struct {
	ID            IntervalID
	AccountID     AccountID
	EmployeeID    EmployeeID
	Dimension     Dimension
	PolicyID      PolicyID
	CategoryID    CategoryID // time-off only
	EffectiveAt   TimePoint
	EffectiveTill *TimePoint // exclusive; nil = current

	// Time-off only
	OccupationRate *decimal.Decimal
	StartDayOrder  int
	EventID        EventID
}

// SeriesKey identifies the series an interval belongs to.
type SeriesKey struct {
	EmployeeID EmployeeID
	Dimension  Dimension
	CategoryID CategoryID
}

func (i Interval) Key() SeriesKey {
	return SeriesKey{EmployeeID: i.EmployeeID, Dimension: i.Dimension, CategoryID: i.CategoryID}
}

func (i Interval) Window() Window { return Window{From: i.EffectiveAt, To: i.EffectiveTill} }
func (i Interval) IsOpen() bool   { return i.EffectiveTill == nil }

// Covers returns true if date lies in [EffectiveAt, EffectiveTill).
func (i Interval) Covers(date TimePoint) bool { return i.Window().Contains(date) }

// Order returns the start-day order, treating zero as the first occurrence.
func (i Interval) Order() int {
	if i.StartDayOrder < 1 {
		return 1
	}
	return i.StartDayOrder
}

// SamePolicy compares the assigned policy and, for time-off, the occupation
// rate snapshot.
func (i Interval) SamePolicy(other Interval) bool {
	if i.PolicyID != other.PolicyID {
		return false
	}
	return sameRate(i.OccupationRate, other.OccupationRate)
}

// SameAssignment is SamePolicy plus an equal start-day order.
func (i Interval) SameAssignment(other Interval) bool {
	return i.SamePolicy(other) && i.Order() == other.Order()
}

func (i Interval) String() string {
	return fmt.Sprintf("%s %s %s", i.Dimension, i.PolicyID, i.Window())
}

func sameRate(a, b *decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	ra, rb := one, one
	if a != nil {
		ra = *a
	}
	if b != nil {
		rb = *b
	}
	return ra.Equal(rb)
}

// =============================================================================
// SERIES - Ordered intervals of one (employee, dimension[, category])
// =============================================================================

type Series []Interval

// NewSeries sorts intervals by EffectiveAt and checks the series invariants.
func NewSeries(intervals []Interval) (Series, error) {
	s := append(Series(nil), intervals...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].EffectiveAt.Before(s[j].EffectiveAt) })
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that intervals are non-empty, ordered, non-overlapping and
// that only the last one may be open.
func (s Series) Validate() error {
	for i, iv := range s {
		if iv.Window().IsEmpty() {
			return &InconsistentStateError{EmployeeID: iv.EmployeeID, Detail: "zero-length interval " + iv.String()}
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		if prev.EffectiveTill == nil {
			return &InconsistentStateError{EmployeeID: iv.EmployeeID, Detail: "more than one current interval for " + string(iv.Dimension)}
		}
		if iv.EffectiveAt.Before(*prev.EffectiveTill) {
			return &InconsistentStateError{EmployeeID: iv.EmployeeID, Detail: "overlapping intervals " + prev.String() + " and " + iv.String()}
		}
	}
	return nil
}

// Covering returns the interval covering date.
func (s Series) Covering(date TimePoint) (Interval, bool) {
	for _, iv := range s {
		if iv.Covers(date) {
			return iv, true
		}
	}
	return Interval{}, false
}

// Current returns the open interval, if any.
func (s Series) Current() (Interval, bool) {
	if len(s) > 0 && s[len(s)-1].IsOpen() {
		return s[len(s)-1], true
	}
	return Interval{}, false
}

// EndingAt returns the interval whose EffectiveTill equals date.
func (s Series) EndingAt(date TimePoint) (Interval, bool) {
	for _, iv := range s {
		if iv.EffectiveTill != nil && iv.EffectiveTill.Equal(date) {
			return iv, true
		}
	}
	return Interval{}, false
}

// StartingAfter returns intervals starting strictly after date.
func (s Series) StartingAfter(date TimePoint) []Interval {
	var out []Interval
	for _, iv := range s {
		if iv.EffectiveAt.After(date) {
			out = append(out, iv)
		}
	}
	return out
}

// InWindow returns intervals intersecting w, in order.
func (s Series) InWindow(w Window) []Interval {
	var out []Interval
	for _, iv := range s {
		if iv.Window().Overlaps(w) {
			out = append(out, iv)
		}
	}
	return out
}

// Previous returns the interval immediately before iv, if it ends exactly
// where iv starts.
func (s Series) Previous(iv Interval) (Interval, bool) {
	return s.EndingAt(iv.EffectiveAt)
}

// SequenceContaining returns the maximal run of adjacent intervals sharing
// the anchor's policy (each EffectiveTill equal to the next EffectiveAt).
func (s Series) SequenceContaining(anchor Interval) []Interval {
	idx := -1
	for i, iv := range s {
		if iv.ID == anchor.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	lo, hi := idx, idx
	for lo > 0 && adjacent(s[lo-1], s[lo]) && s[lo-1].SamePolicy(anchor) {
		lo--
	}
	for hi < len(s)-1 && adjacent(s[hi], s[hi+1]) && s[hi+1].SamePolicy(anchor) {
		hi++
	}
	return append([]Interval(nil), s[lo:hi+1]...)
}

func adjacent(a, b Interval) bool {
	return a.EffectiveTill != nil && a.EffectiveTill.Equal(b.EffectiveAt)
}

// Apply returns a new series with the change applied.
func (s Series) Apply(c Change) Series {
	deleted := make(map[IntervalID]bool, len(c.Deletes))
	for _, d := range c.Deletes {
		deleted[d.ID] = true
	}
	upserted := make(map[IntervalID]Interval, len(c.Upserts))
	for _, u := range c.Upserts {
		upserted[u.ID] = u
	}
	var out Series
	for _, iv := range s {
		if deleted[iv.ID] {
			continue
		}
		if u, ok := upserted[iv.ID]; ok {
			out = append(out, u)
			delete(upserted, iv.ID)
			continue
		}
		out = append(out, iv)
	}
	for _, u := range c.Upserts {
		if _, pending := upserted[u.ID]; pending {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveAt.Before(out[j].EffectiveAt) })
	return out
}

// =============================================================================
// CHANGE - What a plan asks the store to do
// =============================================================================

type Change struct {
	Upserts []Interval
	Deletes []Interval
}

func (c Change) IsEmpty() bool { return len(c.Upserts) == 0 && len(c.Deletes) == 0 }

func (c *Change) Merge(other Change) {
	c.Upserts = append(c.Upserts, other.Upserts...)
	c.Deletes = append(c.Deletes, other.Deletes...)
}

// =============================================================================
// PLAN ASSIGN
// =============================================================================

type AssignOutcome string

const (
	AssignCreated  AssignOutcome = "created"  // a new interval was inserted
	AssignMerged   AssignOutcome = "merged"   // an adjacent same-policy interval was extended
	AssignMetadata AssignOutcome = "metadata" // only the start-day order changed
	AssignNoop     AssignOutcome = "noop"     // the policy already applies
)

type AssignPlan struct {
	Change   Change
	Outcome  AssignOutcome
	Interval Interval  // the interval now covering the assignment date
	Previous *Interval // state before a metadata update
}

// PlanAssign computes the change that makes proposed the interval covering
// proposed.EffectiveAt. The interval previously covering that date is
// truncated there (or replaced when it started on the same date); the new
// interval ends where the covering one ended, or where the next one starts.
// Adjacent intervals with the same assignment are merged.
func PlanAssign(s Series, proposed Interval) AssignPlan {
	at := proposed.EffectiveAt
	cover, hasCover := s.Covering(at)

	if hasCover && cover.SamePolicy(proposed) {
		if cover.EffectiveAt.Equal(at) && cover.Order() != proposed.Order() {
			previous := cover
			updated := cover
			updated.StartDayOrder = proposed.StartDayOrder
			return AssignPlan{
				Change:   Change{Upserts: []Interval{updated}},
				Outcome:  AssignMetadata,
				Interval: updated,
				Previous: &previous,
			}
		}
		return AssignPlan{Outcome: AssignNoop, Interval: cover}
	}

	var change Change
	switch {
	case hasCover:
		proposed.EffectiveTill = cover.EffectiveTill
		if cover.EffectiveAt.Equal(at) {
			change.Deletes = append(change.Deletes, cover)
		} else {
			trimmed := cover
			till := at
			trimmed.EffectiveTill = &till
			change.Upserts = append(change.Upserts, trimmed)
		}
	default:
		if later := s.StartingAfter(at); len(later) > 0 {
			till := later[0].EffectiveAt
			proposed.EffectiveTill = &till
		}
	}

	result := proposed
	outcome := AssignCreated

	if prev, ok := s.EndingAt(at); ok && prev.ID != cover.ID && prev.SameAssignment(proposed) {
		prev.EffectiveTill = proposed.EffectiveTill
		result = prev
		outcome = AssignMerged
	}
	if result.EffectiveTill != nil {
		for _, next := range s.StartingAfter(at) {
			if next.EffectiveAt.Equal(*result.EffectiveTill) && next.SameAssignment(result) {
				result.EffectiveTill = next.EffectiveTill
				change.Deletes = append(change.Deletes, next)
			}
		}
	}

	change.Upserts = append(change.Upserts, result)
	return AssignPlan{Change: change, Outcome: outcome, Interval: result}
}

// =============================================================================
// PLAN RESET
// =============================================================================

// PlanReset closes the series at from and clears the gap [from, to). An
// interval spanning the whole gap is split around it; one starting inside the
// gap and running past to is re-anchored at to. Intervals already ending at or
// before from are untouched, so the plan is empty on a second run.
func PlanReset(s Series, from TimePoint, to *TimePoint, newID func() IntervalID) Change {
	var change Change
	for _, iv := range s {
		if iv.EffectiveTill != nil && !iv.EffectiveTill.After(from) {
			continue
		}
		runsPastGap := to != nil && (iv.EffectiveTill == nil || iv.EffectiveTill.After(*to))

		if iv.EffectiveAt.Before(from) {
			trimmed := iv
			boundary := from
			trimmed.EffectiveTill = &boundary
			change.Upserts = append(change.Upserts, trimmed)
			if runsPastGap {
				tail := iv
				tail.ID = newID()
				tail.EffectiveAt = *to
				change.Upserts = append(change.Upserts, tail)
			}
			continue
		}

		if to != nil && !iv.EffectiveAt.Before(*to) {
			continue
		}
		if runsPastGap {
			moved := iv
			moved.EffectiveAt = *to
			change.Upserts = append(change.Upserts, moved)
			continue
		}
		change.Deletes = append(change.Deletes, iv)
	}
	return change
}

// =============================================================================
// PLAN COLLAPSE
// =============================================================================

// PlanCollapse merges a run of adjacent same-policy intervals into its first
// interval. Runs of fewer than two intervals yield an empty change.
func PlanCollapse(run []Interval) Change {
	if len(run) < 2 {
		return Change{}
	}
	head := run[0]
	head.EffectiveTill = run[len(run)-1].EffectiveTill
	change := Change{Upserts: []Interval{head}}
	change.Deletes = append(change.Deletes, run[1:]...)
	return change
}
